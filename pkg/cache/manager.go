package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// probeTimeout bounds the Redis connectivity check during construction.
const probeTimeout = 3 * time.Second

// Config selects and sizes the cache backend.
type Config struct {
	// Backend is "memory" or "redis". Default memory.
	Backend string

	// RedisAddr is the Redis host:port, required for the redis backend.
	RedisAddr string

	// RedisPassword is optional.
	RedisPassword string

	// RedisDB selects the Redis database number.
	RedisDB int

	// MaxSize bounds the in-process backend entry count.
	MaxSize int
}

// Manager owns the selected backend and is the single cache entry point
// for the rest of the process. If the Redis backend fails its connectivity
// probe at construction, the manager degrades to the in-process backend
// instead of failing startup.
type Manager struct {
	backend Backend
	logger  zerolog.Logger
	group   singleflight.Group
}

// NewManager constructs a manager from configuration.
func NewManager(ctx context.Context, cfg Config, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{logger: logger}

	switch cfg.Backend {
	case "", BackendMemory:
		m.backend = NewMemoryBackend(cfg.MaxSize)
		logger.Info().Int("max_size", cfg.MaxSize).Msg("Using in-process cache backend")

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		backend := NewRedisBackend(client)

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := backend.Ping(probeCtx)
		cancel()
		if err != nil {
			// Degrade rather than fail startup.
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unreachable, degrading to in-process cache backend")
			_ = client.Close()
			m.backend = NewMemoryBackend(cfg.MaxSize)
		} else {
			logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis cache backend")
			m.backend = backend
		}

	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}

	return m, nil
}

// NewManagerWithBackend wraps an explicit backend, mainly for tests and
// embedded use.
func NewManagerWithBackend(backend Backend, logger zerolog.Logger) *Manager {
	return &Manager{backend: backend, logger: logger}
}

// Get returns the value for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	return m.backend.Get(ctx, key)
}

// Set stores value under key for ttl.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.backend.Set(ctx, key, value, ttl)
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.backend.Delete(ctx, key)
}

// Clear removes every key matching the glob pattern.
func (m *Manager) Clear(ctx context.Context, pattern string) (int, error) {
	return m.backend.Clear(ctx, pattern)
}

// Exists reports whether key holds an unexpired entry.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	return m.backend.Exists(ctx, key)
}

// Stats returns the backend counters.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.backend.Stats(ctx)
}

// GetOrCompute returns the cached value for key, or runs compute, stores
// its result for ttl, and returns it. Concurrent callers for the same key
// are collapsed into a single compute call. A failed Set is logged, not
// returned; the computed value is still served.
func (m *Manager) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if data, err := m.backend.Get(ctx, key); err == nil {
		return data, nil
	} else if err != ErrCacheMiss {
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache get error, computing fresh value")
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		// Another caller may have populated the key while we queued.
		if data, err := m.backend.Get(ctx, key); err == nil {
			return data, nil
		}

		data, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if err := m.backend.Set(ctx, key, data, ttl); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Failed to store computed value")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetOrComputeCategory is GetOrCompute with the TTL taken from the
// category's strategy.
func (m *Manager) GetOrComputeCategory(ctx context.Context, category Category, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return m.GetOrCompute(ctx, key, StrategyFor(category).TTL, compute)
}

// Close releases backend resources. The in-process backend has none.
func (m *Manager) Close() error {
	if closer, ok := m.backend.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// BackendName reports which backend the manager ended up with.
func (m *Manager) BackendName(ctx context.Context) string {
	stats, err := m.backend.Stats(ctx)
	if err != nil {
		return "unknown"
	}
	return stats.Backend
}
