// Package parallel provides a bounded worker pool for fanning independent
// I/O-bound work out across goroutines.
//
// Results are always returned in input order, and the first error cancels
// the work that has not started yet.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds how many work items run at once.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool. A non-positive count means runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Workers returns the pool's concurrency limit.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// ProcessIndexed runs worker over items with at most Workers() calls in
// flight. results[i] is worker's result for items[i]. On the first error the
// context passed to workers is canceled and that error is returned.
func ProcessIndexed[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	worker func(ctx context.Context, index int, item T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(wp.numWorkers)

	results := make([]R, len(items))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := worker(ctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
