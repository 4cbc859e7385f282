package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/hdistcc/internal/util/clock"
)

// ErrAttemptsExhausted is returned by Poll when the attempt cap is reached
// without the check reporting done.
var ErrAttemptsExhausted = errors.New("poll attempts exhausted")

// PollOption is a functional option for Poll.
type PollOption func(*pollConfig)

type pollConfig struct {
	maxAttempts int
	clock       clock.Clock
	onTick      func(attempt int)
}

// WithMaxAttempts caps the number of checks. Zero or less polls until the
// context ends.
func WithMaxAttempts(n int) PollOption {
	return func(c *pollConfig) {
		c.maxAttempts = n
	}
}

// WithClock sets the clock used to wait between checks.
func WithClock(c clock.Clock) PollOption {
	return func(cfg *pollConfig) {
		cfg.clock = c
	}
}

// WithOnTick registers a callback invoked after every check.
// The callback runs on the polling goroutine and must not block.
func WithOnTick(f func(attempt int)) PollOption {
	return func(c *pollConfig) {
		c.onTick = f
	}
}

// Poll calls check, then waits interval, until check reports done.
// There is no backoff: the interval is fixed.
//
// A non-fatal error from check counts as "not done yet". An error wrapped
// with Fatal() stops polling and is returned unchanged. Poll returns the
// number of checks performed alongside ErrAttemptsExhausted when the cap is
// reached, or the context error when ctx ends first.
func Poll(ctx context.Context, interval time.Duration, check func(context.Context) (bool, error), opts ...PollOption) (int, error) {
	cfg := &pollConfig{clock: clock.Real()}
	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("poll cancelled after %d attempts: %w", attempt-1, err)
		}

		done, err := check(ctx)
		if cfg.onTick != nil {
			cfg.onTick(attempt)
		}
		if err != nil {
			if IsFatal(err) {
				return attempt, err
			}
			lastErr = err
		} else if done {
			return attempt, nil
		}

		if cfg.maxAttempts > 0 && attempt >= cfg.maxAttempts {
			if lastErr != nil {
				return attempt, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, lastErr)
			}
			return attempt, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, attempt)
		}

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("poll cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-cfg.clock.After(interval):
		}
	}
}
