// Package counter is the shared counter store behind every rate limit and
// notification dedup key. The store is the single source of truth across
// processes; callers may keep caches in front of it but never state.
package counter

import (
	"context"
	"math"
	"time"
)

// Decision is the outcome of consuming one token from a bucket.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store is the narrow contract the limiters rely on.
type Store interface {
	// Take consumes one token from the bucket at key. The bucket holds at most
	// capacity tokens and refills continuously, capacity per window.
	Take(ctx context.Context, key string, capacity int, window time.Duration) (Decision, error)

	// SetNX atomically creates key with the given ttl if it does not exist and
	// reports whether this caller created it.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// refill applies continuous refill and consumes one token. Shared by the
// in-memory store; the redis script mirrors it.
func refill(tokens float64, last, now time.Time, capacity int, window time.Duration) (float64, bool, time.Duration) {
	windowMs := float64(window.Milliseconds())
	elapsed := now.Sub(last).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	tokens += float64(elapsed) * float64(capacity) / windowMs
	if tokens > float64(capacity) {
		tokens = float64(capacity)
	}

	if tokens >= 1 {
		return tokens - 1, true, 0
	}

	wait := time.Duration(math.Ceil((1-tokens)*windowMs/float64(capacity))) * time.Millisecond
	if wait <= 0 {
		wait = time.Millisecond
	}
	return tokens, false, wait
}
