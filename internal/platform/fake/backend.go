package fake

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/imamik/hdistcc/internal/fleet"
)

// ErrInjected is the cause used by scripted failures.
var ErrInjected = errors.New("injected failure")

// Node is one node held by the backend.
type Node struct {
	Project string
	Zone    string
	Name    string
	Status  string
	Address string
	Spec    fleet.NodeSpec
}

type operation struct {
	// polls left before the operation reports done; -1 never completes.
	remaining int
	errMsg    string
	// applied when the operation completes.
	onDone func()
}

// Backend is an in-memory fleet.Provider, fleet.KeyManager and
// fleet.FirewallManager.
type Backend struct {
	mu sync.Mutex

	nodes map[string]*Node
	ops   map[string]*operation
	keys  map[string]string
	fws   map[string][]string
	seq   int

	// OperationPolls is how many polls an operation needs before it is done.
	OperationPolls int

	// Images maps owner/family to an image reference. A missing entry
	// resolves to "<owner>/<family>".
	Images map[string]string

	createFail   map[string]string
	createReject map[string]error
	createStatus map[string]string
	deleteFail   map[string]string
	hang         map[string]bool
	pollErrors   int
	listErr      error

	Calls Calls
}

// Calls counts backend calls by kind.
type Calls struct {
	List, Create, Delete, Poll, Resolve int
	Created, Deleted                    []string
}

// NewBackend returns an empty backend whose operations complete on the
// first poll.
func NewBackend() *Backend {
	return &Backend{
		nodes:          make(map[string]*Node),
		ops:            make(map[string]*operation),
		keys:           make(map[string]string),
		fws:            make(map[string][]string),
		OperationPolls: 1,
		Images:         make(map[string]string),
		createFail:     make(map[string]string),
		createReject:   make(map[string]error),
		createStatus:   make(map[string]string),
		deleteFail:     make(map[string]string),
		hang:           make(map[string]bool),
	}
}

// AddNode seeds a node.
func (b *Backend) AddNode(project, zone, name, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.nodes[key(project, zone, name)] = &Node{
		Project: project, Zone: zone, Name: name, Status: status,
		Address: fmt.Sprintf("10.0.0.%d", b.seq),
	}
}

// FailCreate makes the create operation for name finish with msg.
func (b *Backend) FailCreate(name, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createFail[name] = msg
}

// RejectCreate makes CreateNode for name return err without an operation.
func (b *Backend) RejectCreate(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createReject[name] = err
}

// CreateAs makes name appear with status instead of RUNNING once its
// create operation completes.
func (b *Backend) CreateAs(name, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createStatus[name] = status
}

// FailDelete makes the delete operation for name finish with msg.
func (b *Backend) FailDelete(name, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteFail[name] = msg
}

// Hang makes operations on name never complete.
func (b *Backend) Hang(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hang[name] = true
}

// FailPolls makes the next n PollOperation calls return an error.
func (b *Backend) FailPolls(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pollErrors = n
}

// FailList makes ListNodes return err until cleared with nil.
func (b *Backend) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// Nodes returns a snapshot of every node, sorted by name.
func (b *Backend) Nodes() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, *n)
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// CallCounts returns a copy of the call counters.
func (b *Backend) CallCounts() Calls {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.Calls
	c.Created = slices.Clone(c.Created)
	c.Deleted = slices.Clone(c.Deleted)
	return c
}

// SSHKeys returns the registered keys.
func (b *Backend) SSHKeys() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.keys)
}

// ListNodes implements fleet.Provider.
func (b *Backend) ListNodes(_ context.Context, project, zone string) ([]fleet.NodeStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls.List++
	if b.listErr != nil {
		return nil, b.listErr
	}

	var out []fleet.NodeStatus
	for _, n := range b.nodes {
		if n.Project == project && n.Zone == zone {
			out = append(out, fleet.NodeStatus{Name: n.Name, Status: n.Status, Address: n.Address})
		}
	}
	// Map order stands in for the unordered listing of a real backend.
	return out, nil
}

// CreateNode implements fleet.Provider. The node appears as RUNNING once
// its operation completes.
func (b *Backend) CreateNode(_ context.Context, project, zone string, spec fleet.NodeSpec) (fleet.Operation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls.Create++
	b.Calls.Created = append(b.Calls.Created, spec.Name)

	if err, ok := b.createReject[spec.Name]; ok {
		return fleet.Operation{}, err
	}
	k := key(project, zone, spec.Name)
	if _, ok := b.nodes[k]; ok {
		return fleet.Operation{}, fmt.Errorf("node %s already exists", spec.Name)
	}

	op := b.newOperation(spec.Name, b.createFail[spec.Name])
	if op.errMsg == "" {
		b.seq++
		addr := fmt.Sprintf("10.0.0.%d", b.seq)
		status := cmp.Or(b.createStatus[spec.Name], fleet.StatusRunning)
		op.onDone = func() {
			b.nodes[k] = &Node{Project: project, Zone: zone, Name: spec.Name, Status: status, Address: addr, Spec: spec}
		}
	}
	return b.register(op, "create"), nil
}

// DeleteNode implements fleet.Provider.
func (b *Backend) DeleteNode(_ context.Context, project, zone, name string) (fleet.Operation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls.Delete++

	k := key(project, zone, name)
	n, ok := b.nodes[k]
	if !ok {
		return fleet.Operation{}, fmt.Errorf("delete %s: %w", name, fleet.ErrNodeNotFound)
	}
	b.Calls.Deleted = append(b.Calls.Deleted, name)

	op := b.newOperation(name, b.deleteFail[name])
	if op.errMsg == "" {
		n.Status = "DELETING"
		op.onDone = func() { delete(b.nodes, k) }
	}
	return b.register(op, "delete"), nil
}

// PollOperation implements fleet.Provider.
func (b *Backend) PollOperation(ctx context.Context, _, _ string, op fleet.Operation) (fleet.OperationStatus, error) {
	if err := ctx.Err(); err != nil {
		return fleet.OperationStatus{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls.Poll++

	if b.pollErrors > 0 {
		b.pollErrors--
		return fleet.OperationStatus{}, fmt.Errorf("poll %s: %w", op.ID, ErrInjected)
	}
	o, ok := b.ops[op.ID]
	if !ok {
		return fleet.OperationStatus{}, fmt.Errorf("unknown operation %s", op.ID)
	}
	if o.remaining < 0 {
		return fleet.OperationStatus{}, nil
	}
	if o.remaining > 0 {
		o.remaining--
	}
	if o.remaining > 0 {
		return fleet.OperationStatus{}, nil
	}
	if o.onDone != nil {
		o.onDone()
		o.onDone = nil
	}
	return fleet.OperationStatus{Done: true, Error: o.errMsg}, nil
}

// ResolveImage implements fleet.Provider.
func (b *Backend) ResolveImage(_ context.Context, owner, family string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls.Resolve++
	if ref, ok := b.Images[owner+"/"+family]; ok {
		if ref == "" {
			return "", fmt.Errorf("image family %s/%s not found", owner, family)
		}
		return ref, nil
	}
	return owner + "/" + family, nil
}

// EnsureSSHKey implements fleet.KeyManager.
func (b *Backend) EnsureSSHKey(_ context.Context, name, publicKey string, _ map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[name] = publicKey
	return nil
}

// DeleteSSHKey implements fleet.KeyManager.
func (b *Backend) DeleteSSHKey(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.keys, name)
	return nil
}

// Firewalls returns the registered firewalls and their sources.
func (b *Backend) Firewalls() map[string][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.fws)
}

// EnsureFirewall implements fleet.FirewallManager.
func (b *Backend) EnsureFirewall(_ context.Context, name string, sources []string, _ map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fws[name] = slices.Clone(sources)
	return nil
}

// DeleteFirewall implements fleet.FirewallManager.
func (b *Backend) DeleteFirewall(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fws, name)
	return nil
}

func (b *Backend) newOperation(name, errMsg string) *operation {
	remaining := b.OperationPolls
	if remaining < 1 {
		remaining = 1
	}
	if b.hang[name] {
		remaining = -1
	}
	return &operation{remaining: remaining, errMsg: errMsg}
}

func (b *Backend) register(op *operation, kind string) fleet.Operation {
	id := uuid.NewString()
	b.ops[id] = op
	return fleet.Operation{ID: id, Kind: kind}
}

func key(project, zone, name string) string {
	return project + "/" + zone + "/" + name
}
