package observe

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer defines the interface for structured observability.
type Observer interface {
	// Printf writes a human-readable line.
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)

	// Progress reports one poll tick of a long-running wait.
	Progress(phase string, current, total int)

	// WithFields returns an Observer that adds fields to every event.
	WithFields(fields map[string]string) Observer
}

// Event represents a structured fleet event.
type Event struct {
	Type      EventType
	Phase     string
	Node      string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType represents the type of fleet event.
type EventType string

const (
	EventOperationStarted   EventType = "operation.started"
	EventOperationCompleted EventType = "operation.completed"
	EventOperationFailed    EventType = "operation.failed"

	EventNodeProvisioning EventType = "node.provisioning"
	EventNodeProvisioned  EventType = "node.provisioned"
	EventNodeRunning      EventType = "node.running"
	EventNodeReady        EventType = "node.ready"
	EventNodeNotReady     EventType = "node.not_ready"
	EventNodeTerminating  EventType = "node.terminating"
	EventNodeTerminated   EventType = "node.terminated"
	EventNodeFailed       EventType = "node.failed"

	EventProgress EventType = "progress"
)

// LogObserver implements Observer on top of logr.
type LogObserver struct {
	log    logr.Logger
	fields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log, fields: map[string]string{}}
}

// Printf implements Observer.
func (o *LogObserver) Printf(format string, v ...any) {
	o.log.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	event = mergeFields(event, o.fields)
	kv := []any{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Node != "" {
		kv = append(kv, "node", event.Node)
	}
	for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
		kv = append(kv, k, event.Fields[k])
	}

	switch event.Type {
	case EventNodeFailed, EventOperationFailed, EventNodeNotReady:
		o.log.Info(event.Message, append(kv, "level", "warning")...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// Progress implements Observer. Ticks are debug-level.
func (o *LogObserver) Progress(phase string, current, total int) {
	kv := []any{"phase", phase, "attempt", current}
	if total > 0 {
		kv = append(kv, "of", total)
	}
	for _, k := range slices.Sorted(maps.Keys(o.fields)) {
		kv = append(kv, k, o.fields[k])
	}
	o.log.V(1).Info("waiting", kv...)
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, fields)
	return &LogObserver{log: o.log, fields: merged}
}

// Nop returns an Observer that discards everything.
func Nop() Observer { return nopObserver{} }

type nopObserver struct{}

func (nopObserver) Printf(string, ...any)                  {}
func (nopObserver) Event(Event)                            {}
func (nopObserver) Progress(string, int, int)              {}
func (n nopObserver) WithFields(map[string]string) Observer { return n }

// Tee returns an Observer forwarding to every non-nil observer.
func Tee(observers ...Observer) Observer {
	var live []Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return teeObserver(live)
}

type teeObserver []Observer

func (t teeObserver) Printf(format string, v ...any) {
	for _, o := range t {
		o.Printf(format, v...)
	}
}

func (t teeObserver) Event(event Event) {
	for _, o := range t {
		o.Event(event)
	}
}

func (t teeObserver) Progress(phase string, current, total int) {
	for _, o := range t {
		o.Progress(phase, current, total)
	}
}

func (t teeObserver) WithFields(fields map[string]string) Observer {
	out := make(teeObserver, len(t))
	for i, o := range t {
		out[i] = o.WithFields(fields)
	}
	return out
}

// mergeFields stamps the event and adds context fields it does not override.
func mergeFields(event Event, ctxFields map[string]string) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	merged := maps.Clone(ctxFields)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, event.Fields)
	event.Fields = merged
	return event
}

// Recorder is an Observer that keeps everything in memory. It is safe for
// concurrent use and intended for tests.
type Recorder struct {
	state  *recorderState
	fields map[string]string
}

type recorderState struct {
	mu     sync.Mutex
	events []Event
	lines  []string
	ticks  int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{state: &recorderState{}}
}

// Printf implements Observer.
func (r *Recorder) Printf(format string, v ...any) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.lines = append(r.state.lines, fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (r *Recorder) Event(event Event) {
	event = mergeFields(event, r.fields)
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.events = append(r.state.events, event)
}

// Progress implements Observer.
func (r *Recorder) Progress(string, int, int) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.ticks++
}

// WithFields implements Observer.
func (r *Recorder) WithFields(fields map[string]string) Observer {
	merged := maps.Clone(r.fields)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, fields)
	return &Recorder{state: r.state, fields: merged}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return slices.Clone(r.state.events)
}

// EventsOfType returns recorded events of the given type.
func (r *Recorder) EventsOfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Lines returns a copy of the recorded Printf lines.
func (r *Recorder) Lines() []string {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return slices.Clone(r.state.lines)
}

// Ticks returns the number of progress ticks received.
func (r *Recorder) Ticks() int {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.ticks
}
