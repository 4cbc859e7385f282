package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/hdistcc/internal/observe"
	"github.com/imamik/hdistcc/internal/util/clock"
	"github.com/imamik/hdistcc/internal/util/retry"
)

// DefaultMaxPollErrors is the number of consecutive failed polls after
// which an operation is reported as ErrBackendUnavailable.
const DefaultMaxPollErrors = 5

// OperationWaiter polls one backend operation to completion.
type OperationWaiter struct {
	provider      Provider
	clock         clock.Clock
	maxPollErrors int
	metrics       *Metrics
}

// NewOperationWaiter creates a waiter. A non-positive maxPollErrors uses
// DefaultMaxPollErrors.
func NewOperationWaiter(provider Provider, clk clock.Clock, maxPollErrors int) *OperationWaiter {
	if clk == nil {
		clk = clock.Real()
	}
	if maxPollErrors <= 0 {
		maxPollErrors = DefaultMaxPollErrors
	}
	return &OperationWaiter{provider: provider, clock: clk, maxPollErrors: maxPollErrors}
}

// Wait blocks until op is done. It returns nil on success, an
// *OperationError when the operation finished with an error payload, an
// error wrapping ErrBackendUnavailable after repeated poll failures, and an
// error wrapping ErrOperationTimeout when ctx ends first. A slow backend is
// never an error by itself: only ctx bounds the wait.
func (w *OperationWaiter) Wait(ctx context.Context, project, zone string, op Operation, interval time.Duration, obs observe.Observer) error {
	if op.ID == "" {
		return nil
	}
	if obs == nil {
		obs = observe.Nop()
	}

	consecutive := 0
	check := func(ctx context.Context) (bool, error) {
		status, err := w.provider.PollOperation(ctx, project, zone, op)
		if err != nil {
			if ctx.Err() != nil {
				return false, retry.Fatal(ctx.Err())
			}
			consecutive++
			if consecutive >= w.maxPollErrors {
				return false, retry.Fatal(fmt.Errorf("%w: polling operation %s: %w", ErrBackendUnavailable, op.ID, err))
			}
			return false, err
		}
		consecutive = 0
		if !status.Done {
			return false, nil
		}
		if status.Error != "" {
			return false, retry.Fatal(&OperationError{ID: op.ID, Message: status.Error})
		}
		return true, nil
	}

	_, err := retry.Poll(ctx, interval, check,
		retry.WithClock(w.clock),
		retry.WithOnTick(func(attempt int) {
			obs.Progress("operation", attempt, 0)
			w.metrics.pollTick("operation")
		}),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: waiting for operation %s: %w", ErrOperationTimeout, op.ID, err)
	}
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}
