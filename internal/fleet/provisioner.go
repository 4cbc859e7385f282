package fleet

import (
	"context"
	"time"

	"github.com/imamik/hdistcc/internal/observe"
)

// Provisioner creates single nodes.
type Provisioner struct {
	provider     Provider
	waiter       *OperationWaiter
	pollInterval time.Duration
	timeout      time.Duration
}

// NewProvisioner creates a provisioner. timeout bounds one node's create
// and wait; zero leaves only the caller's deadline.
func NewProvisioner(provider Provider, waiter *OperationWaiter, pollInterval, timeout time.Duration) *Provisioner {
	return &Provisioner{provider: provider, waiter: waiter, pollInterval: pollInterval, timeout: timeout}
}

// Create submits the node at index and waits for the backend to report it
// created. The returned record is EXISTS on success and FAILED, alongside a
// *ProvisionError, otherwise. Safe for concurrent use with distinct indices.
func (p *Provisioner) Create(ctx context.Context, id Identity, spec NodeSpec, index int, obs observe.Observer) (*NodeRecord, error) {
	nodeSpec := spec.ForIndex(index)
	record := NewRecord(nodeSpec.Name)
	if obs == nil {
		obs = observe.Nop()
	}
	obs = obs.WithFields(map[string]string{"node": record.Name})

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	obs.Event(observe.Event{Type: observe.EventNodeProvisioning, Phase: "provision", Node: record.Name, Message: "creating node"})

	op, err := p.provider.CreateNode(ctx, id.Project, id.Zone, nodeSpec)
	if err == nil {
		err = p.waiter.Wait(ctx, id.Project, id.Zone, op, p.pollInterval, obs)
	}
	if err != nil {
		perr := &ProvisionError{Name: record.Name, Cause: err}
		record.Fail(perr)
		obs.Event(observe.Event{Type: observe.EventNodeFailed, Phase: "provision", Node: record.Name, Message: perr.Error()})
		return record, perr
	}

	_ = record.Advance(StateExists)
	obs.Event(observe.Event{Type: observe.EventNodeProvisioned, Phase: "provision", Node: record.Name, Message: "node created"})
	return record, nil
}
