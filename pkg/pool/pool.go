// Package pool runs a task over a slice of items with bounded concurrency.
//
// Workers claim item indices from one shared atomic cursor, so every item is
// claimed exactly once and claims happen in ascending order. Completion
// order is not preserved; callers that need ordering reassemble by index
// (see package reorder). The pool never retries a task.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
)

// Task processes the item at index. It is called at most once per index.
type Task[T any] func(ctx context.Context, index int, item T)

// Stats summarizes a finished run.
type Stats struct {
	// Claimed is the number of items handed to the task.
	Claimed int

	// Workers is the number of goroutines started.
	Workers int
}

// Run starts min(concurrency, len(items)) workers and blocks until all of
// them stop. A worker stops when the cursor passes the last item, when the
// token is cancelled (checked before each claim) or when ctx is done.
// A concurrency below 1 is treated as 1.
func Run[T any](ctx context.Context, token *coordinator.Token, items []T, concurrency int, task Task[T]) Stats {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	var (
		cursor  atomic.Int64
		claimed atomic.Int64
		wg      sync.WaitGroup
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if token.Cancelled() || ctx.Err() != nil {
					return
				}
				idx := int(cursor.Add(1) - 1)
				if idx >= len(items) {
					return
				}
				claimed.Add(1)
				task(ctx, idx, items[idx])
			}
		}()
	}

	wg.Wait()
	return Stats{Claimed: int(claimed.Load()), Workers: concurrency}
}
