// Package natssink republishes fleet events on NATS so other tooling can
// follow node lifecycle changes of a build session.
package natssink

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/imamik/hdistcc/internal/observe"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "hdistcc.events"

// publisher is the subset of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON payload published per event.
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Phase     string            `json:"phase,omitempty"`
	Node      string            `json:"node,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink is an observe.Observer that publishes events. Printf lines and
// progress ticks are not published.
type Sink struct {
	pub    publisher
	prefix string
	fields map[string]string
	conn   *nats.Conn
	log    logr.Logger
}

// Connect dials NATS and returns a Sink. Close must be called to flush.
// Connection and publish failures are reported to log.
func Connect(url, subjectPrefix string, log logr.Logger) (*Sink, error) {
	nc, err := nats.Connect(url,
		nats.Name("hdistcc"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error(err, "nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	s := newSink(nc, subjectPrefix, log)
	s.conn = nc
	return s, nil
}

func newSink(pub publisher, prefix string, log logr.Logger) *Sink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Sink{pub: pub, prefix: prefix, fields: map[string]string{}, log: log}
}

// Subject returns the subject an event type is published on.
func (s *Sink) Subject(t observe.EventType) string {
	return s.prefix + "." + string(t)
}

// Event implements observe.Observer. Publish only buffers, so this never
// blocks on the network; failures are logged and dropped.
func (s *Sink) Event(event observe.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	fields := maps.Clone(s.fields)
	maps.Copy(fields, event.Fields)

	payload, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      string(event.Type),
		Phase:     event.Phase,
		Node:      event.Node,
		Message:   event.Message,
		Timestamp: event.Timestamp,
		Fields:    fields,
	})
	if err != nil {
		s.log.Error(err, "failed to encode event", "type", event.Type)
		return
	}
	if err := s.pub.Publish(s.Subject(event.Type), payload); err != nil {
		s.log.Error(err, "failed to publish event", "subject", s.Subject(event.Type))
	}
}

// Printf implements observe.Observer.
func (s *Sink) Printf(string, ...any) {}

// Progress implements observe.Observer.
func (s *Sink) Progress(string, int, int) {}

// WithFields implements observe.Observer.
func (s *Sink) WithFields(fields map[string]string) observe.Observer {
	merged := maps.Clone(s.fields)
	maps.Copy(merged, fields)
	return &Sink{pub: s.pub, prefix: s.prefix, fields: merged, conn: s.conn, log: s.log}
}

// Close flushes buffered events and closes the connection.
func (s *Sink) Close() {
	if s.conn != nil && !s.conn.IsClosed() {
		_ = s.conn.Drain()
	}
}
