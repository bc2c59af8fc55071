// Package guard is the composition root for the resilience layer. One
// Guard per process owns the rate limiter, the breaker registry, the cache
// manager, and the health system, and exposes the call wrapper the rest of
// the application uses for every upstream request.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-guard/pkg/breaker"
	"github.com/Sternrassler/spotify-guard/pkg/cache"
	"github.com/Sternrassler/spotify-guard/pkg/fallback"
	"github.com/Sternrassler/spotify-guard/pkg/health"
	"github.com/Sternrassler/spotify-guard/pkg/ratelimit"
	"github.com/Sternrassler/spotify-guard/pkg/retry"
)

// Config assembles the per-component configurations.
type Config struct {
	RateLimit ratelimit.Config
	Breaker   breaker.Config
	Cache     cache.Config
}

// DefaultConfig returns a working configuration for the memory backend.
func DefaultConfig() Config {
	return Config{
		RateLimit: ratelimit.DefaultConfig(),
		Breaker:   breaker.DefaultConfig(),
		Cache:     cache.Config{Backend: cache.BackendMemory, MaxSize: cache.DefaultMemoryCapacity},
	}
}

// Guard wires the resilience components together. Construct one per
// process and pass it by reference to anything needing resilience or
// caching.
type Guard struct {
	limiter     *ratelimit.Limiter
	breakers    *breaker.Registry
	cacheMgr    *cache.Manager
	invalidator *cache.Invalidator
	healthSys   *health.System
	logger      zerolog.Logger
	startedAt   time.Time
}

// New builds a Guard from configuration. Construction probes the cache
// backend but never fails on an unreachable Redis; the manager degrades to
// the in-process backend instead.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Guard, error) {
	cacheMgr, err := cache.NewManager(ctx, cfg.Cache, logger.With().Str("component", "cache").Logger())
	if err != nil {
		return nil, fmt.Errorf("guard: cache manager: %w", err)
	}

	g := &Guard{
		limiter:     ratelimit.NewLimiter(cfg.RateLimit, logger.With().Str("component", "ratelimit").Logger()),
		breakers:    breaker.NewRegistry(cfg.Breaker, logger.With().Str("component", "breaker").Logger()),
		cacheMgr:    cacheMgr,
		healthSys:   health.NewSystem(logger.With().Str("component", "health").Logger()),
		logger:      logger,
		startedAt:   time.Now(),
	}
	g.invalidator = cache.NewInvalidator(cacheMgr, logger.With().Str("component", "invalidator").Logger())

	// The cache is load-bearing but the process can serve without it.
	g.healthSys.RegisterCheck("cache", func(ctx context.Context) error {
		_, err := cacheMgr.Stats(ctx)
		return err
	}, false, 2*time.Second)

	return g, nil
}

// Shutdown releases backend resources.
func (g *Guard) Shutdown(ctx context.Context) error {
	return g.cacheMgr.Close()
}

// Cache returns the process-wide cache manager.
func (g *Guard) Cache() *cache.Manager {
	return g.cacheMgr
}

// Invalidator returns the process-wide cache invalidator.
func (g *Guard) Invalidator() *cache.Invalidator {
	return g.invalidator
}

// Health returns the process-wide health system.
func (g *Guard) Health() *health.System {
	return g.healthSys
}

// Breakers returns the breaker registry, mainly for inspection.
func (g *Guard) Breakers() *breaker.Registry {
	return g.breakers
}

// RateLimiter returns the process-wide rate limiter.
func (g *Guard) RateLimiter() *ratelimit.Limiter {
	return g.limiter
}

// Retryable is the default predicate for retry policies running under the
// guard: breaker rejections and caller cancellation are not worth
// retrying, everything else is assumed transient.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, breaker.ErrOpen):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// callConfig collects per-call options.
type callConfig struct {
	policy    *retry.Policy
	fallbacks []func(ctx context.Context) error
}

// CallOption customizes one WithResilience call.
type CallOption func(*callConfig)

// WithRetry retries the breaker-wrapped unit under the given policy.
func WithRetry(policy *retry.Policy) CallOption {
	return func(c *callConfig) {
		c.policy = policy
	}
}

// WithFallbacks runs substitute operations, in order, after the primary
// (including its retries) has terminally failed.
func WithFallbacks(ops ...func(ctx context.Context) error) CallOption {
	return func(c *callConfig) {
		c.fallbacks = append(c.fallbacks, ops...)
	}
}

// WithResilience runs the unit of work under the full composition:
// rate limit admission, then the dependency's circuit breaker, then any
// configured retry policy, then any configured fallbacks. Rate limiting is
// a scheduling delay, never an error; the unit's own errors pass through
// unless retries or fallbacks convert them.
func (g *Guard) WithResilience(ctx context.Context, dependency string, unit func(ctx context.Context) error, opts ...CallOption) error {
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	wait, err := g.limiter.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("guard: %q admission: %w", dependency, err)
	}
	if wait.Throttled() {
		g.logger.Debug().Str("dependency", dependency).Dur("wait", wait.Total()).
			Msg("Call delayed by rate limiter")
	}

	b := g.breakers.GetOrCreate(dependency)
	execute := func(ctx context.Context) error {
		return b.Call(ctx, unit)
	}

	if cfg.policy != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return cfg.policy.Execute(ctx, inner)
		}
	}

	err = execute(ctx)
	if err == nil || len(cfg.fallbacks) == 0 {
		return err
	}

	chain := fallback.NewChain(g.logger.With().Str("dependency", dependency).Logger()).
		Primary(func(ctx context.Context) (any, error) {
			return nil, err
		})
	for _, op := range cfg.fallbacks {
		op := op
		chain.Fallback(func(ctx context.Context) (any, error) {
			return nil, op(ctx)
		})
	}
	_, ferr := chain.Execute(ctx)
	return ferr
}

// Stats is the aggregated observability snapshot.
type Stats struct {
	UptimeSeconds float64                  `json:"uptime_seconds"`
	RateLimiter   ratelimit.Stats          `json:"rate_limiter"`
	Breakers      map[string]breaker.Stats `json:"breakers"`
	Cache         cache.Stats              `json:"cache"`
	Health        []health.CheckStats      `json:"health"`
}

// Stats snapshots every component's counters.
func (g *Guard) Stats(ctx context.Context) (Stats, error) {
	cacheStats, err := g.cacheMgr.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("guard: cache stats: %w", err)
	}

	return Stats{
		UptimeSeconds: time.Since(g.startedAt).Seconds(),
		RateLimiter:   g.limiter.Stats(),
		Breakers:      g.breakers.Stats(),
		Cache:         cacheStats,
		Health:        g.healthSys.Stats(),
	}, nil
}
