package provider

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of provider requests allowed in flight at once.
const DefaultConcurrency = 2

// Limiter caps the number of simultaneous provider requests across the whole
// process. Construct one at startup and hand the same instance to every Client.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewLimiter creates a limiter admitting n concurrent calls. Values below 1
// fall back to DefaultConcurrency.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), capacity: n}
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Do runs fn while holding one slot. It waits for a slot or for ctx to end,
// whichever comes first.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	return fn(ctx)
}
