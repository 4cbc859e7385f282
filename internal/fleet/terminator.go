package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/imamik/hdistcc/internal/observe"
)

// Terminator deletes single nodes.
type Terminator struct {
	provider     Provider
	waiter       *OperationWaiter
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTerminator creates a terminator. timeout bounds one node's delete and
// wait; zero leaves only the caller's deadline.
func NewTerminator(provider Provider, waiter *OperationWaiter, pollInterval, timeout time.Duration) *Terminator {
	return &Terminator{provider: provider, waiter: waiter, pollInterval: pollInterval, timeout: timeout}
}

// Delete removes name and waits for the backend to finish. A node that is
// already gone counts as deleted: the backend may reclaim interruptible
// nodes on its own. Failures are returned as *TerminateError.
func (t *Terminator) Delete(ctx context.Context, id Identity, name string, obs observe.Observer) error {
	if obs == nil {
		obs = observe.Nop()
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	op, err := t.provider.DeleteNode(ctx, id.Project, id.Zone, name)
	if errors.Is(err, ErrNodeNotFound) {
		obs.Printf("%s was already gone", name)
		return nil
	}
	if err == nil {
		err = t.waiter.Wait(ctx, id.Project, id.Zone, op, t.pollInterval, obs)
	}
	if err != nil {
		return &TerminateError{Name: name, Cause: err}
	}
	return nil
}
