// Package queue runs a function over a list of items with bounded parallelism.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/vault-ledger/internal/logger"
	"golang.org/x/sync/semaphore"
)

// ProcessFunc handles one item. index is the item's position in the input.
type ProcessFunc[T, R any] func(ctx context.Context, item T, index int) (R, error)

// ConcurrencyQueue runs ProcessFunc over items with at most Concurrency
// invocations in flight. A failing or panicking invocation is logged and
// leaves no result for its index; it never stops the other items.
type ConcurrencyQueue[T, R any] struct {
	items       []T
	concurrency int
	process     ProcessFunc[T, R]
}

// New creates a queue. A concurrency below 1 is raised to 1.
func New[T, R any](items []T, concurrency int, process ProcessFunc[T, R]) *ConcurrencyQueue[T, R] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ConcurrencyQueue[T, R]{
		items:       items,
		concurrency: concurrency,
		process:     process,
	}
}

// Run processes every item and returns the successful results keyed by input
// index. When ctx is cancelled, items that have not started yet are skipped;
// running ones see the cancelled context. Run itself never fails.
func (q *ConcurrencyQueue[T, R]) Run(ctx context.Context) Results[R] {
	log := logger.FromContext(ctx)
	sem := semaphore.NewWeighted(int64(q.concurrency))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = Results[R]{byIndex: make(map[int]R, len(q.items)), total: len(q.items)}
	)

	for i, item := range q.items {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Int("skipped", len(q.items)-i).Msg("queue cancelled before all items started")
			break
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)

			r, err := q.safeProcess(ctx, item, i)
			if err != nil {
				log.Error().Err(err).Int("index", i).Msg("queue item failed")
				return
			}

			mu.Lock()
			out.byIndex[i] = r
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()
	return out
}

func (q *ConcurrencyQueue[T, R]) safeProcess(ctx context.Context, item T, index int) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return q.process(ctx, item, index)
}

// Results holds the outputs of a run keyed by input index.
// Indexes whose invocation failed are absent.
type Results[R any] struct {
	byIndex map[int]R
	total   int
}

// Get returns the result for an input index.
func (r Results[R]) Get(index int) (R, bool) {
	v, ok := r.byIndex[index]
	return v, ok
}

// Len is the number of successful invocations.
func (r Results[R]) Len() int { return len(r.byIndex) }

// Failed is the number of inputs with no result, including skipped ones.
func (r Results[R]) Failed() int { return r.total - len(r.byIndex) }

// Ordered returns the successful results in input order.
func (r Results[R]) Ordered() []R {
	idx := make([]int, 0, len(r.byIndex))
	for i := range r.byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]R, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.byIndex[i])
	}
	return out
}
