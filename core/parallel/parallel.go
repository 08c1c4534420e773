package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Workers normalises a requested worker count. Values below 1 mean
// "use every CPU core"; the result never exceeds items when items > 0.
func Workers(requested, items int) int {
	w := requested
	if w < 1 {
		w = runtime.NumCPU()
	}
	if items > 0 && w > items {
		w = items
	}
	return w
}

// Parallelize divides the specified total number (items) into at most
// workers contiguous ranges and executes fn in parallel for each range (start, end).
func Parallelize(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := Workers(workers, items)

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}

		// Skip if there's no range to handle
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// and more than one worker is allowed. Otherwise fn runs once over the whole range.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold || workers == 1 {
		fn(0, items)
		return
	}
	Parallelize(items, workers, fn)
}

// ForEach runs fn(ctx, i) for every i in [0, n) on a pool of at most workers
// goroutines. With workers == 1 the calls happen sequentially in index order.
//
// The first non-nil error returned by fn cancels the context passed to the
// remaining calls; indices not yet dispatched are skipped. ForEach returns
// that first error, or ctx.Err() if the parent context ended first.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers, n))

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
