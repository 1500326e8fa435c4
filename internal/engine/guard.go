package engine

import (
	"context"
	"sync"
	"time"
)

// spinInterval is how long a daemon sleeps between failed lock attempts: a
// fixed 1-second backoff, not exponential — each critical section is
// bounded by one remote walk or one debounced local batch.
const spinInterval = 1 * time.Second

// Guard serializes access to a single shared resource between the remote
// and local daemons via spin-try-lock rather than a blocking mutex, so a
// daemon shutting down on ctx cancellation never wedges on Lock().
type Guard[T any] struct {
	mu       sync.Mutex
	resource T
}

// NewGuard wraps resource in a Guard.
func NewGuard[T any](resource T) *Guard[T] {
	return &Guard[T]{resource: resource}
}

// Acquire blocks (spinning at spinInterval) until the guard's lock is free,
// then returns the resource and a release function the caller must call
// exactly once. Returns ctx.Err() if ctx is canceled while waiting.
func (g *Guard[T]) Acquire(ctx context.Context) (T, func(), error) {
	for {
		if g.mu.TryLock() {
			return g.resource, g.mu.Unlock, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, nil, ctx.Err()
		case <-time.After(spinInterval):
		}
	}
}

// withGuards acquires the log guard and then the client guard, in that
// fixed order, for the duration of fn — every caller in this package goes
// through this helper so the two daemons can never deadlock against each
// other by acquiring the pair in opposite order.
func withGuards[L, C any](ctx context.Context, logGuard *Guard[L], clientGuard *Guard[C], fn func(L, C) error) error {
	log, releaseLog, err := logGuard.Acquire(ctx)
	if err != nil {
		return err
	}
	defer releaseLog()

	client, releaseClient, err := clientGuard.Acquire(ctx)
	if err != nil {
		return err
	}
	defer releaseClient()

	return fn(log, client)
}
