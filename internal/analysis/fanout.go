package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ItemOutcome is the result of one fan-out item.
type ItemOutcome[T any] struct {
	Value T
	Err   error
}

// FanOut runs worker over items with at most limit calls in flight and
// returns one ItemOutcome per item in input order. A failing item never cancels
// its siblings; callers filter successes themselves.
func FanOut[I, T any](ctx context.Context, items []I, limit int, worker func(context.Context, I) (T, error)) []ItemOutcome[T] {
	outcomes := make([]ItemOutcome[T], len(items))
	if len(items) == 0 {
		return outcomes
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			v, err := worker(ctx, item)
			outcomes[i] = ItemOutcome[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
