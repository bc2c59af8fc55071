// Package fallback runs ordered substitute operations after a failed
// primary. Unlike retrying, a fallback never re-runs the same operation;
// it swaps in a different one, such as serving a stale cache entry or a
// degraded-but-valid default.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrExhausted is returned when the primary and every fallback failed. It
// wraps the last failure.
var ErrExhausted = errors.New("fallback: all strategies exhausted")

var guardFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guard_fallbacks_total",
	Help: "Fallback chain outcomes (primary, fallback, exhausted)",
}, []string{"outcome"})

// Operation is one strategy in a chain. It returns an opaque result.
type Operation func(ctx context.Context) (any, error)

// Chain runs a primary operation and, on failure, each registered fallback
// in insertion order, stopping at the first success.
type Chain struct {
	primary   Operation
	fallbacks []Operation
	logger    zerolog.Logger

	primarySuccesses  atomic.Int64
	fallbackSuccesses atomic.Int64
	totalFailures     atomic.Int64
}

// NewChain creates an empty chain. Configure it with Primary and Fallback
// before calling Execute.
func NewChain(logger zerolog.Logger) *Chain {
	return &Chain{logger: logger}
}

// Primary sets the primary operation. Returns the chain for building.
func (c *Chain) Primary(op Operation) *Chain {
	c.primary = op
	return c
}

// Fallback appends a substitute operation. Fallbacks run in the order they
// were added.
func (c *Chain) Fallback(op Operation) *Chain {
	c.fallbacks = append(c.fallbacks, op)
	return c
}

// Execute runs the primary, then each fallback until one succeeds. If all
// fail, it returns ErrExhausted wrapping the last failure.
func (c *Chain) Execute(ctx context.Context) (any, error) {
	if c.primary == nil {
		return nil, errors.New("fallback: no primary operation configured")
	}

	result, err := c.primary(ctx)
	if err == nil {
		c.primarySuccesses.Add(1)
		guardFallbacksTotal.WithLabelValues("primary").Inc()
		return result, nil
	}
	lastErr := err

	c.logger.Debug().Err(err).Int("fallbacks", len(c.fallbacks)).
		Msg("Primary failed, trying fallbacks")

	for i, op := range c.fallbacks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err = op(ctx)
		if err == nil {
			c.fallbackSuccesses.Add(1)
			guardFallbacksTotal.WithLabelValues("fallback").Inc()
			c.logger.Info().Int("strategy", i+1).Msg("Fallback strategy succeeded")
			return result, nil
		}
		lastErr = err
	}

	c.totalFailures.Add(1)
	guardFallbacksTotal.WithLabelValues("exhausted").Inc()
	c.logger.Warn().Err(lastErr).Msg("All fallback strategies failed")

	return nil, fmt.Errorf("%w (%d strategies): %w", ErrExhausted, 1+len(c.fallbacks), lastErr)
}

// Stats is a snapshot of chain counters.
type Stats struct {
	PrimarySuccesses  int64 `json:"primary_successes"`
	FallbackSuccesses int64 `json:"fallback_successes"`
	TotalFailures     int64 `json:"total_failures"`
}

// Stats returns the current counter values.
func (c *Chain) Stats() Stats {
	return Stats{
		PrimarySuccesses:  c.primarySuccesses.Load(),
		FallbackSuccesses: c.fallbackSuccesses.Load(),
		TotalFailures:     c.totalFailures.Load(),
	}
}
