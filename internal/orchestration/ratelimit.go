package orchestration

import (
	"context"
	"time"
)

// RateLimiter spaces execution starts so no two dispatches begin closer
// together than the configured interval, shared across all concurrent tasks.
//
// Acquire is internally serialized: one caller at a time computes its wait,
// and the last-start time is only advanced after that wait completes, so the
// spacing invariant holds under contention. Blocked acquirers proceed in
// arrival order.
type RateLimiter struct {
	interval time.Duration
	lock     chan struct{}
	last     time.Time
}

// NewRateLimiter builds a limiter allowing requestsPerMinute dispatch starts
// per minute. A non-positive rate disables limiting.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	var interval time.Duration
	if requestsPerMinute > 0 {
		interval = time.Minute / time.Duration(requestsPerMinute)
	}
	return &RateLimiter{
		interval: interval,
		lock:     make(chan struct{}, 1),
	}
}

// Interval returns the minimum spacing between dispatch starts.
func (rl *RateLimiter) Interval() time.Duration {
	return rl.interval
}

// Acquire blocks the calling task until the interval since the previous
// acquire has elapsed. Context cancellation aborts the wait.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.interval <= 0 {
		return ctx.Err()
	}

	select {
	case rl.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-rl.lock }()

	if !rl.last.IsZero() {
		if wait := rl.interval - time.Since(rl.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	rl.last = time.Now()
	return nil
}
