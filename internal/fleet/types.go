package fleet

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/imamik/hdistcc/internal/util/naming"
)

// Backend-reported node statuses the orchestrator cares about. Providers
// report statuses upper-cased; anything else is passed through verbatim.
const (
	StatusRunning = "RUNNING"
	StatusUnknown = "UNKNOWN"
)

// NodeStatus is one entry of a backend listing.
type NodeStatus struct {
	Name    string
	Status  string
	Address string
}

// Running reports whether the backend considers the node running.
func (n NodeStatus) Running() bool {
	return n.Status == StatusRunning
}

// NetworkConfig controls public addressing of a node.
type NetworkConfig struct {
	PublicIPv4 bool
	PublicIPv6 bool
}

// NodeSpec describes the node to create. One spec is shared by every node
// of a start call; ForIndex derives the per-node copy.
type NodeSpec struct {
	Name          string
	Image         string
	MachineType   string
	StartupScript string
	Network       NetworkConfig
	Scopes        []string
	Preemptible   bool
	SSHKeys       []string
	Labels        map[string]string
}

// ForIndex returns a deep copy of the spec named for the node at index.
func (s NodeSpec) ForIndex(index int) NodeSpec {
	out := s
	out.Name = naming.Node(s.Name, index)
	out.Scopes = slices.Clone(s.Scopes)
	out.SSHKeys = slices.Clone(s.SSHKeys)
	out.Labels = maps.Clone(s.Labels)
	return out
}

// Operation is a handle on an asynchronous backend task.
// An empty ID means the task had already completed when it was returned.
type Operation struct {
	ID   string
	Kind string
}

// OperationStatus is one observation of an Operation.
type OperationStatus struct {
	Done  bool
	Error string
}

// Provider is the compute backend.
type Provider interface {
	// ListNodes returns every node in project and zone.
	ListNodes(ctx context.Context, project, zone string) ([]NodeStatus, error)

	// CreateNode submits a creation request.
	CreateNode(ctx context.Context, project, zone string, spec NodeSpec) (Operation, error)

	// DeleteNode submits a deletion request. It returns an error wrapping
	// ErrNodeNotFound when the node does not exist.
	DeleteNode(ctx context.Context, project, zone, name string) (Operation, error)

	// PollOperation observes an operation once.
	PollOperation(ctx context.Context, project, zone string, op Operation) (OperationStatus, error)

	// ResolveImage returns the image reference for a family published by owner.
	ResolveImage(ctx context.Context, owner, family string) (string, error)
}

// KeyManager is implemented by providers that manage SSH keys.
type KeyManager interface {
	EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) error
	DeleteSSHKey(ctx context.Context, name string) error
}

// FirewallManager is implemented by providers that can restrict inbound
// traffic to the nodes labelled with a fleet's name.
type FirewallManager interface {
	EnsureFirewall(ctx context.Context, name string, sources []string, labels map[string]string) error
	DeleteFirewall(ctx context.Context, name string) error
}

// Prober checks a node's readiness sentinel. Transport failures must be
// reported as false.
type Prober interface {
	ProbeReady(ctx context.Context, name, zone, project string) bool
}

// Dispatcher runs the distributed build against a host list.
type Dispatcher interface {
	Dispatch(ctx context.Context, hosts []HostDescriptor, parallelism int) error
}

// FleetView is the filtered result of one directory query.
type FleetView struct {
	Nodes []NodeStatus
}

// Len returns the number of nodes in the view.
func (v FleetView) Len() int { return len(v.Nodes) }

// Names returns node names in listing order.
func (v FleetView) Names() []string {
	names := make([]string, len(v.Nodes))
	for i, n := range v.Nodes {
		names[i] = n.Name
	}
	return names
}

// String implements fmt.Stringer.
func (v FleetView) String() string {
	return fmt.Sprintf("%d nodes %v", len(v.Nodes), v.Names())
}
