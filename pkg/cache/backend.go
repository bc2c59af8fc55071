// Package cache provides TTL-keyed caching for Spotify API responses with
// pluggable storage backends, pattern-based invalidation, and startup
// warming. The in-process backend is an LRU bounded by entry count; the
// Redis backend shares entries across processes.
package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	// ErrCacheMiss indicates the key was absent or expired.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("cache: invalid entry")
)

// Backend is the storage contract shared by the in-process and Redis
// implementations.
//
// Contract:
//   - Implementations must be safe for concurrent use.
//   - Get never returns an expired entry; reading an expired entry deletes
//     it (lazy expiry, no background sweep).
//   - Clear takes a glob pattern; "*" clears everything.
type Backend interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A non-positive ttl stores
	// nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Idempotent.
	Delete(ctx context.Context, key string) error

	// Clear removes every key matching the glob pattern and returns the
	// number removed.
	Clear(ctx context.Context, pattern string) (int, error)

	// Exists reports whether key holds an unexpired entry.
	Exists(ctx context.Context, key string) (bool, error)

	// Stats returns backend counters.
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes backend effectiveness.
type Stats struct {
	Backend   string  `json:"backend"`
	Size      int64   `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// hitRate computes hits/(hits+misses), zero when idle.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
