// Package ratelimit paces outbound requests to one platform.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// IntervalLimiter enforces a minimum spacing between requests. Every
// outbound call to a platform must go through its limiter; callers block
// until their slot comes up, requests are never dropped.
type IntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{interval: interval}
}

// Wait blocks until the caller may issue a request or ctx is done.
// Slots are handed out in call order.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if l.next.After(now) {
		wait = l.next.Sub(now)
		l.next = l.next.Add(l.interval)
	} else {
		l.next = now.Add(l.interval)
	}
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval reports the configured spacing, for logging.
func (l *IntervalLimiter) Interval() time.Duration {
	return l.interval
}
