// Package ratelimit implements client-side request rate limiting for the
// Spotify Web API. A multi-tier token bucket limiter keeps request volume
// inside the per-second, per-minute, and per-hour quotas so the upstream
// never has to reject us with 429s.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket is a lazily refilled token bucket. Tokens regenerate at
// refillRate per second up to capacity; refill is computed from elapsed
// wall-clock time on every access, there is no background timer.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time

	// now is replaceable for deterministic tests.
	now func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	if capacity <= 0 {
		panic("ratelimit: bucket capacity must be positive")
	}
	if refillRate <= 0 {
		panic("ratelimit: refill rate must be positive")
	}

	b := &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Callers must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now
}

// TryAcquire consumes n tokens if available. It never blocks.
func (b *TokenBucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Acquire blocks until n tokens are available, consumes them, and returns
// the wait time incurred. Waiting suspends only the calling goroutine.
// Cancelling ctx aborts the wait without consuming anything.
func (b *TokenBucket) Acquire(ctx context.Context, n float64) (time.Duration, error) {
	if n > b.capacity {
		return 0, fmt.Errorf("ratelimit: requested %.2f tokens exceeds capacity %.2f", n, b.capacity)
	}

	var waited time.Duration
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			return waited, nil
		}
		wait := time.Duration((n - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return waited, ctx.Err()
		case <-time.After(wait):
			waited += wait
			// Re-check under the lock; another caller may have drained
			// the tokens that regenerated while we slept.
		}
	}
}

// Refund returns n tokens to the bucket, capped at capacity. Used when a
// multi-tier acquisition is abandoned after this bucket already granted.
func (b *TokenBucket) Refund(n float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += n
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// Tokens returns the currently available token count after refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// Capacity returns the bucket capacity.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}
