package fleet

import (
	"context"
	"time"

	"github.com/imamik/hdistcc/internal/observe"
	"github.com/imamik/hdistcc/internal/util/clock"
	"github.com/imamik/hdistcc/internal/util/retry"
)

// Readiness defaults: boot-time setup is bounded, so the poll is a fixed
// interval with a fixed cap.
const (
	DefaultReadyAttempts = 40
	DefaultReadyInterval = 10 * time.Second
)

// ReadinessPoller waits for a node's readiness sentinel.
type ReadinessPoller struct {
	prober   Prober
	clock    clock.Clock
	attempts int
	interval time.Duration
	metrics  *Metrics
}

// NewReadinessPoller creates a poller. Non-positive values use the defaults.
func NewReadinessPoller(prober Prober, clk clock.Clock, attempts int, interval time.Duration) *ReadinessPoller {
	if clk == nil {
		clk = clock.Real()
	}
	if attempts <= 0 {
		attempts = DefaultReadyAttempts
	}
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	return &ReadinessPoller{prober: prober, clock: clk, attempts: attempts, interval: interval}
}

// WaitReady probes name once per interval until the sentinel is seen or
// the attempt cap is reached. It returns the number of probes issued and,
// when the node never became ready (including cancellation), a
// *ReadinessTimeout.
func (r *ReadinessPoller) WaitReady(ctx context.Context, id Identity, name string, obs observe.Observer) (int, error) {
	if obs == nil {
		obs = observe.Nop()
	}

	attempts, err := retry.Poll(ctx, r.interval, func(ctx context.Context) (bool, error) {
		return r.prober.ProbeReady(ctx, name, id.Zone, id.Project), nil
	},
		retry.WithMaxAttempts(r.attempts),
		retry.WithClock(r.clock),
		retry.WithOnTick(func(attempt int) {
			obs.Progress("readiness", attempt, r.attempts)
			r.metrics.pollTick("readiness")
		}),
	)
	if err != nil {
		return attempts, &ReadinessTimeout{Name: name, Attempts: attempts, Cause: err}
	}
	return attempts, nil
}
