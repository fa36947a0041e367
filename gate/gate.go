// Package gate provides the bounded-concurrency primitives shared by tool
// execution and stream admission: a fixed-capacity gate with FIFO waiters
// and per-acquisition timeout, and a generic timeout wrapper for single
// operations. Both report failures as coded errors.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentrelay/core"
)

// Gate bounds concurrent entry to a section. Waiters beyond capacity queue
// in strict arrival order; a waiter that is not serviced within its timeout
// is rejected with the coded error it was acquired under.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// New creates a gate admitting at most capacity concurrent holders.
// Capacity must be positive.
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: int64(capacity)}
}

// Acquire obtains one slot, queuing FIFO behind earlier waiters. If no slot
// frees within timeout, it fails with a coded error carrying code/message.
// The returned release function is idempotent; calling it more than once
// frees the slot exactly once.
func (g *Gate) Acquire(ctx context.Context, timeout time.Duration, code, message string) (func(), error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		// Distinguish our timeout from cancellation of the parent context.
		if ctx.Err() == nil && waitCtx.Err() == context.DeadlineExceeded {
			return nil, core.NewError(code, message)
		}
		return nil, err
	}

	g.inUse.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			g.inUse.Add(-1)
			g.sem.Release(1)
		})
	}
	return release, nil
}

// InUse returns the number of currently held slots.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }

// Capacity returns the gate's fixed capacity.
func (g *Gate) Capacity() int { return int(g.capacity) }

// WithTimeout runs fn under a deadline. On expiry it returns a coded error
// carrying code/message; fn observes cancellation through its context and
// its outcome is discarded. There is no other cancellation mechanism: a
// timeout always produces a terminal, observable result.
func WithTimeout[T any](ctx context.Context, d time.Duration, code, message string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(opCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, core.NewError(code, message)
	}
}
