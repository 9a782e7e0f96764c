// ratelimit.go implements token-bucket rate limiting for venue APIs.
//
// Venues enforce per-category request limits. This file provides a smooth
// token-bucket implementation that refills continuously (rather than in
// window-sized bursts) to stay clear of hard limits.
//
// Three buckets are maintained per adapter:
//   - Order:  order placement
//   - Cancel: cancels, including bulk cancel fan-out
//   - Read:   market data, positions, balances, order status
package venue

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// TryTake consumes a token without blocking, reporting whether one was
// available. Used on paths that must reject instead of queue.
func (tb *TokenBucket) TryTake() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter groups token buckets by venue API category. Each operation
// must call the appropriate bucket's Wait() before making the HTTP request.
type RateLimiter struct {
	Order  *TokenBucket
	Cancel *TokenBucket
	Read   *TokenBucket
}

// NewRateLimiter creates rate limiters with a conservative default profile
// usable across the supported venues. Capacities are burst allowances,
// rates the sustained per-second budget.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:  NewTokenBucket(20, 10),
		Cancel: NewTokenBucket(20, 10),
		Read:   NewTokenBucket(60, 20),
	}
}
