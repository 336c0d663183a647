package feasibility

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter caps how many checks hold a browser at the same time. Each check
// still opens and closes its own browser.
type Limiter struct {
	sem    *semaphore.Weighted
	limit  int64
	active atomic.Int64
}

func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), limit: int64(n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inc()
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inc()
	return true
}

func (l *Limiter) Release() {
	l.active.Add(-1)
	metricActiveRuns.Dec()
	l.sem.Release(1)
}

func (l *Limiter) Active() int64 { return l.active.Load() }

func (l *Limiter) Limit() int64 { return l.limit }

func (l *Limiter) inc() {
	l.active.Add(1)
	metricActiveRuns.Inc()
}
