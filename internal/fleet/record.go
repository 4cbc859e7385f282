package fleet

import "fmt"

// NodeState is the lifecycle state of a node within one operation.
type NodeState int

const (
	StateRequested NodeState = iota
	StateExists
	StateRunning
	StateReady
	StateTerminating
	StateGone
	StateFailed
)

var stateNames = map[NodeState]string{
	StateRequested:   "REQUESTED",
	StateExists:      "EXISTS",
	StateRunning:     "RUNNING",
	StateReady:       "READY",
	StateTerminating: "TERMINATING",
	StateGone:        "GONE",
	StateFailed:      "FAILED",
}

// String implements fmt.Stringer.
func (s NodeState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NodeState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s NodeState) Terminal() bool {
	return s == StateGone || s == StateFailed
}

// transitions lists the forward moves out of each state. FAILED is
// reachable from every non-terminal state and is handled separately.
var transitions = map[NodeState][]NodeState{
	StateRequested:   {StateExists},
	StateExists:      {StateRunning, StateTerminating},
	StateRunning:     {StateReady, StateTerminating},
	StateReady:       {StateTerminating},
	StateTerminating: {StateGone},
}

// NodeRecord tracks one node through an operation. A record is owned by
// exactly one stage task at a time and is only read after the stage joins.
type NodeRecord struct {
	Name               string
	State              NodeState
	LastObservedStatus string
	Attempts           int
	Err                error
}

// NewRecord returns a record for a node about to be created.
func NewRecord(name string) *NodeRecord {
	return &NodeRecord{Name: name, State: StateRequested}
}

// DiscoveredRecord returns a record for a node found in a listing.
func DiscoveredRecord(n NodeStatus) *NodeRecord {
	r := &NodeRecord{Name: n.Name, State: StateExists, LastObservedStatus: n.Status}
	if n.Running() {
		r.State = StateRunning
	}
	return r
}

// Advance moves the record forward. Moving to the current state is a no-op.
func (r *NodeRecord) Advance(to NodeState) error {
	if r.State == to {
		return nil
	}
	if to == StateFailed && !r.State.Terminal() {
		r.State = to
		return nil
	}
	for _, allowed := range transitions[r.State] {
		if allowed == to {
			r.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, r.State, to, r.Name)
}

// Fail moves the record to FAILED and keeps the cause. A record that is
// already terminal keeps its state.
func (r *NodeRecord) Fail(err error) {
	if r.State.Terminal() {
		return
	}
	r.State = StateFailed
	r.Err = err
}

// Observe records a backend status. Observing RUNNING promotes an EXISTS
// record; no observation ever moves a record backward.
func (r *NodeRecord) Observe(status string) {
	r.LastObservedStatus = status
	if status == StatusRunning && r.State == StateExists {
		r.State = StateRunning
	}
}
