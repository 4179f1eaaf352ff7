package transport

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
)

// RateLimiter caps outbound calls at limit per rolling period. Callers over the
// cap are delayed until the oldest call in the window expires; calls are never
// dropped.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	calls  []time.Time
	clock  clock.Clock
}

// NewRateLimiter returns a limiter. A nil clock selects the system clock.
func NewRateLimiter(limit int, period time.Duration, c clock.Clock) *RateLimiter {
	if c == nil {
		c = clock.System{}
	}
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{limit: limit, period: period, clock: c}
}

// Wait blocks until a call may leave, then records it.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay := r.reserve()
		if delay <= 0 {
			return nil
		}
		if err := clock.SleepContext(ctx, r.clock, delay); err != nil {
			return err
		}
	}
}

// reserve records a call and returns 0 when the window has room, otherwise it
// returns how long until the oldest call leaves the window.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.period)
	r.calls = lo.Filter(r.calls, func(t time.Time, _ int) bool {
		return t.After(cutoff)
	})

	if len(r.calls) < r.limit {
		r.calls = append(r.calls, now)
		return 0
	}
	return r.calls[0].Add(r.period).Sub(now)
}

// InWindow returns the number of calls recorded in the current window.
func (r *RateLimiter) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.clock.Now().Add(-r.period)
	return lo.CountBy(r.calls, func(t time.Time) bool { return t.After(cutoff) })
}
