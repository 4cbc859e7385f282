package fleet

import (
	"errors"
	"fmt"
)

// Operation names used in results, events and metrics.
const (
	OpStart  = "start"
	OpStatus = "status"
	OpMake   = "make"
	OpStop   = "stop"
)

// NodeResult is the outcome of one node within an operation.
type NodeResult struct {
	Name          string    `json:"name"`
	BackendStatus string    `json:"backendStatus,omitempty"`
	State         NodeState `json:"state"`
	Attempts      int       `json:"attempts,omitempty"`
	Err           error     `json:"-"`
}

// Error returns the node's error text, or "".
func (r NodeResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Result is the outcome of one fleet operation.
type Result struct {
	Operation   string           `json:"operation"`
	Nodes       []NodeResult     `json:"nodes"`
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	Hosts       []HostDescriptor `json:"hosts,omitempty"`
	Parallelism int              `json:"parallelism,omitempty"`
}

// Failed returns the nodes that ended in a failure that is not a warning.
func (r *Result) Failed() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Err != nil && !IsWarning(n.Err) {
			out = append(out, n)
		}
	}
	return out
}

// Warnings returns the nodes whose error is only a warning.
func (r *Result) Warnings() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Err != nil && IsWarning(n.Err) {
			out = append(out, n)
		}
	}
	return out
}

// Err joins the per-node failures, or returns nil when there were none.
func (r *Result) Err() error {
	var errs []error
	for _, n := range r.Failed() {
		errs = append(errs, n.Err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d nodes failed: %w", r.Operation, len(errs), len(r.Nodes), errors.Join(errs...))
}

func resultFromRecord(r *NodeRecord) NodeResult {
	return NodeResult{
		Name:          r.Name,
		BackendStatus: r.LastObservedStatus,
		State:         r.State,
		Attempts:      r.Attempts,
		Err:           r.Err,
	}
}
