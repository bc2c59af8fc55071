package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyNamespace prefixes every key so the guard shares a Redis database
// politely with other tenants.
const keyNamespace = "guard:"

// RedisBackend adapts a Redis client to the Backend contract. TTL expiry
// is delegated to Redis itself; pattern clears use SCAN with a server-side
// MATCH instead of fetching keys for client-side globbing.
type RedisBackend struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisBackend wraps an existing Redis client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &RedisBackend{client: client}
}

// Ping probes connectivity. The Manager uses this at construction time to
// decide whether to degrade to the in-process backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client's connections.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Get returns the value for key, or ErrCacheMiss.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyNamespace+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.misses.Add(1)
			guardCacheMissesTotal.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		guardCacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	r.hits.Add(1)
	guardCacheHitsTotal.WithLabelValues("redis").Inc()
	return data, nil
}

// Set stores value with a native Redis TTL. A non-positive ttl stores
// nothing.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyNamespace+key, value, ttl).Err(); err != nil {
		guardCacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyNamespace+key).Err(); err != nil {
		guardCacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key matching the glob pattern via SCAN MATCH and
// returns the number removed.
func (r *RedisBackend) Clear(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, keyNamespace+pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del batch: %w", err)
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := flush(); err != nil {
				guardCacheErrorsTotal.WithLabelValues("clear").Inc()
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		guardCacheErrorsTotal.WithLabelValues("clear").Inc()
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		guardCacheErrorsTotal.WithLabelValues("clear").Inc()
		return removed, err
	}
	return removed, nil
}

// Exists reports whether key is present.
func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, keyNamespace+key).Result()
	if err != nil {
		guardCacheErrorsTotal.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Stats returns hit/miss counters tracked by this process plus the key
// count observed on the server.
func (r *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	size := int64(0)
	iter := r.client.Scan(ctx, 0, keyNamespace+"*", 1000).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("redis scan: %w", err)
	}

	hits := r.hits.Load()
	misses := r.misses.Load()
	return Stats{
		Backend: "redis",
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}, nil
}

var _ Backend = (*RedisBackend)(nil)
