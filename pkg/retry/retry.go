// Package retry wraps units of work with bounded retries and exponential
// backoff. Full jitter spreads the actual sleep uniformly over [0, delay]
// so many callers retrying at once do not synchronize into a storm.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrRetriesExhausted is returned when every attempt failed. It wraps the
// last underlying error for diagnosis.
var ErrRetriesExhausted = errors.New("retry: attempts exhausted")

// Prometheus metrics for retry operations.
var (
	guardRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_retries_total",
		Help: "Total retry attempts by policy",
	}, []string{"policy"})

	guardRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guard_retry_backoff_seconds",
		Help:    "Backoff duration before retries by policy",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"policy"})

	guardRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_retry_exhausted_total",
		Help: "Total times a policy ran out of attempts",
	}, []string{"policy"})
)

// Config is the immutable retry configuration.
type Config struct {
	// Name labels the policy in logs and metrics.
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier per attempt.
	ExponentialBase float64

	// Jitter draws the actual sleep uniformly from [0, delay] when true.
	Jitter bool

	// Retryable decides whether an error is worth retrying. Nil means
	// every error is retryable.
	Retryable func(error) bool
}

// Policy executes units of work under a retry configuration and keeps
// per-instance counters.
type Policy struct {
	config Config
	logger zerolog.Logger

	totalAttempts  atomic.Int64
	totalRetries   atomic.Int64
	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64
}

// New creates a retry policy.
func New(cfg Config, logger zerolog.Logger) *Policy {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.ExponentialBase <= 1 {
		cfg.ExponentialBase = 2.0
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool { return err != nil }
	}

	return &Policy{
		config: cfg,
		logger: logger.With().Str("policy", cfg.Name).Logger(),
	}
}

// Conservative retries few times with long delays. Suited for mutations
// where duplicated work is expensive.
func Conservative(logger zerolog.Logger) *Policy {
	return New(Config{
		Name:            "conservative",
		MaxAttempts:     3,
		InitialDelay:    2 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 3.0,
		Jitter:          true,
	}, logger)
}

// Aggressive retries many times with moderate delays. Suited for critical
// reads that must eventually succeed.
func Aggressive(logger zerolog.Logger) *Policy {
	return New(Config{
		Name:            "aggressive",
		MaxAttempts:     5,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        15 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, logger)
}

// Fast retries quickly and gives up early. Suited for latency-sensitive
// paths with a fallback behind them.
func Fast(logger zerolog.Logger) *Policy {
	return New(Config{
		Name:            "fast",
		MaxAttempts:     2,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, logger)
}

// Execute attempts the unit up to MaxAttempts times. Non-retryable errors
// propagate immediately without consuming remaining attempts. Exhausting
// all attempts returns ErrRetriesExhausted wrapping the last error.
func (p *Policy) Execute(ctx context.Context, unit func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		p.totalAttempts.Add(1)

		err := unit(ctx)
		if err == nil {
			p.totalSuccesses.Add(1)
			if attempt > 1 {
				p.logger.Info().Int("attempt", attempt).Msg("Succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !p.config.Retryable(err) {
			p.totalFailures.Add(1)
			return err
		}
		if attempt >= p.config.MaxAttempts {
			break
		}

		delay := p.delayFor(attempt)
		p.totalRetries.Add(1)
		guardRetriesTotal.WithLabelValues(p.config.Name).Inc()
		guardRetryBackoffSeconds.WithLabelValues(p.config.Name).Observe(delay.Seconds())

		p.logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			p.totalFailures.Add(1)
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	p.totalFailures.Add(1)
	guardRetryExhaustedTotal.WithLabelValues(p.config.Name).Inc()
	p.logger.Warn().
		Int("max_attempts", p.config.MaxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.config.MaxAttempts, lastErr)
}

// delayFor computes the backoff before the retry following attempt.
func (p *Policy) delayFor(attempt int) time.Duration {
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.ExponentialBase, float64(attempt-1))
	if capped := float64(p.config.MaxDelay); delay > capped {
		delay = capped
	}
	if p.config.Jitter {
		// Full jitter: uniform over [0, delay].
		// #nosec G404 -- timing variance, not security material.
		delay = rand.Float64() * delay
	}
	return time.Duration(delay)
}

// Stats is a snapshot of the policy counters.
type Stats struct {
	Name           string `json:"name"`
	TotalAttempts  int64  `json:"total_attempts"`
	TotalRetries   int64  `json:"total_retries"`
	TotalSuccesses int64  `json:"total_successes"`
	TotalFailures  int64  `json:"total_failures"`
}

// Stats returns the current counter values.
func (p *Policy) Stats() Stats {
	return Stats{
		Name:           p.config.Name,
		TotalAttempts:  p.totalAttempts.Load(),
		TotalRetries:   p.totalRetries.Load(),
		TotalSuccesses: p.totalSuccesses.Load(),
		TotalFailures:  p.totalFailures.Load(),
	}
}
