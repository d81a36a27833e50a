package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket: capacity tokens, one token regenerating
// every perToken. A full bucket absorbs small bursts; sustained callers are
// spaced perToken apart.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	perToken time.Duration
	last     time.Time
}

func NewRateLimiter(capacity int, perToken time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		perToken: perToken,
		last:     time.Now(),
	}
}

// Allow consumes a token if one is available without blocking.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill(time.Now())
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.refill(now)
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - r.tokens) * float64(r.perToken))
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.last)
	if elapsed <= 0 {
		return
	}
	r.tokens += float64(elapsed) / float64(r.perToken)
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.last = now
}
