package scan

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run at once. Batches created from one Pool
// share its limit, whichever goroutine submits to them.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool running at most limit tasks. limit < 1 is treated as 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Batch starts a new group of tasks on the pool.
func (p *Pool) Batch() *Batch {
	return &Batch{pool: p}
}

// Batch tracks tasks submitted together so they can be awaited as a unit.
type Batch struct {
	pool *Pool
	wg   sync.WaitGroup
}

// Go waits for a free slot and runs fn in its own goroutine. When ctx ends
// before a slot frees up, fn never runs and ctx.Err() is returned.
func (b *Batch) Go(ctx context.Context, fn func()) error {
	if err := b.pool.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.pool.sem.Release(1)
		fn()
	}()
	return nil
}

// Wait blocks until every started task returns or ctx ends, and reports
// whether all of them finished. Tasks still running keep running.
func (b *Batch) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
