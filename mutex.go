package usbshare

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AsyncMutex is a single-permit lock with both blocking and
// context-cancellable acquisition. Waiters are admitted in no particular
// order; the only guarantee is mutual exclusion.
type AsyncMutex struct {
	sem *semaphore.Weighted
}

func NewAsyncMutex() *AsyncMutex {
	return &AsyncMutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the permit is available.
func (m *AsyncMutex) Lock() *Guard {
	// Acquire cannot fail with a background context.
	_ = m.sem.Acquire(context.Background(), 1)
	return &Guard{sem: m.sem}
}

// Acquire waits for the permit until ctx is cancelled. A cancelled
// acquisition holds no permit and returns no guard.
func (m *AsyncMutex) Acquire(ctx context.Context) (*Guard, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Guard{sem: m.sem}, nil
}

// Guard is one scoped acquisition of an AsyncMutex.
type Guard struct {
	sem      *semaphore.Weighted
	released atomic.Bool
}

// Release returns the permit. Releasing more than once is a no-op, so a
// deferred Release after an explicit one never double-signals the permit.
func (g *Guard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.sem.Release(1)
	}
}
