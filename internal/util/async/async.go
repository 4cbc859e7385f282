package async

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is the settled result of one item.
type Outcome[R any] struct {
	Key   string
	Value R
	Err   error
}

// Map runs fn once per item, at most limit at a time, and waits for every
// task to settle. Outcomes are returned in item order regardless of
// completion order. A limit of zero or less means one task per item.
//
// Each task writes only its own slot; the join is the only synchronization.
func Map[T, R any](ctx context.Context, items []T, limit int, key func(T) string, fn func(context.Context, T) (R, error)) []Outcome[R] {
	outcomes := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return outcomes
	}

	// Plain Group, not WithContext: a failed task must not cancel its siblings.
	var g errgroup.Group
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			value, err := fn(ctx, item)
			outcomes[i] = Outcome[R]{Key: key(item), Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Errors returns the failed outcomes keyed by item key.
func Errors[R any](outcomes []Outcome[R]) map[string]error {
	failed := make(map[string]error)
	for _, o := range outcomes {
		if o.Err != nil {
			failed[o.Key] = o.Err
		}
	}
	return failed
}
