package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	guardRateLimitAcquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_rate_limit_acquires_total",
		Help: "Total rate limiter acquisitions by outcome (granted, throttled, cancelled)",
	}, []string{"outcome"})

	guardRateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guard_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate limit tokens by tier",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"tier"})
)

// Config holds the per-tier request quotas.
type Config struct {
	// PerSecond is the sustained request rate per second.
	PerSecond float64

	// PerMinute is the request quota per minute.
	PerMinute float64

	// PerHour is the request quota per hour.
	PerHour float64
}

// DefaultConfig returns quotas matching the documented Spotify Web API
// limits with headroom for other clients on the same token.
func DefaultConfig() Config {
	return Config{
		PerSecond: 10,
		PerMinute: 100,
		PerHour:   1000,
	}
}

// Wait is the per-tier breakdown of the delay incurred by an acquisition.
// Callers use it to decide whether to log or surface backpressure;
// throttling itself is never an error.
type Wait struct {
	Second time.Duration
	Minute time.Duration
	Hour   time.Duration
}

// Total is the cumulative wait across all tiers.
func (w Wait) Total() time.Duration {
	return w.Second + w.Minute + w.Hour
}

// Throttled reports whether any tier made the caller wait.
func (w Wait) Throttled() bool {
	return w.Total() > 0
}

// Limiter gates admission through three token bucket tiers. A request is
// admitted only once the second, minute, and hour buckets have all granted.
type Limiter struct {
	second *TokenBucket
	minute *TokenBucket
	hour   *TokenBucket
	logger zerolog.Logger
}

// NewLimiter creates a limiter with all tiers full.
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		second: NewTokenBucket(cfg.PerSecond, cfg.PerSecond),
		minute: NewTokenBucket(cfg.PerMinute, cfg.PerMinute/60),
		hour:   NewTokenBucket(cfg.PerHour, cfg.PerHour/3600),
		logger: logger,
	}
}

// Acquire blocks until all three tiers admit n requests and returns the
// per-tier wait breakdown.
//
// Tiers are drained sequentially (second, then minute, then hour) and each
// tier refills while the caller waits on another, so the effective delay is
// the serialized per-tier wait, not a jointly computed one. A later tier's
// wait can let an earlier tier regenerate past what was checked; this
// matches the admission semantics the rest of the system is tuned for and
// is kept deliberately.
//
// If ctx is cancelled partway through, tokens already consumed from earlier
// tiers are refunded so abandoned waits do not leak capacity.
func (l *Limiter) Acquire(ctx context.Context, n float64) (Wait, error) {
	var w Wait

	secondWait, err := l.second.Acquire(ctx, n)
	w.Second = secondWait
	if err != nil {
		guardRateLimitAcquiresTotal.WithLabelValues("cancelled").Inc()
		return w, err
	}
	guardRateLimitWaitSeconds.WithLabelValues("second").Observe(secondWait.Seconds())

	minuteWait, err := l.minute.Acquire(ctx, n)
	w.Minute = minuteWait
	if err != nil {
		l.second.Refund(n)
		guardRateLimitAcquiresTotal.WithLabelValues("cancelled").Inc()
		return w, err
	}
	guardRateLimitWaitSeconds.WithLabelValues("minute").Observe(minuteWait.Seconds())

	hourWait, err := l.hour.Acquire(ctx, n)
	w.Hour = hourWait
	if err != nil {
		l.second.Refund(n)
		l.minute.Refund(n)
		guardRateLimitAcquiresTotal.WithLabelValues("cancelled").Inc()
		return w, err
	}
	guardRateLimitWaitSeconds.WithLabelValues("hour").Observe(hourWait.Seconds())

	if w.Throttled() {
		guardRateLimitAcquiresTotal.WithLabelValues("throttled").Inc()
		l.logger.Debug().
			Dur("wait_second", w.Second).
			Dur("wait_minute", w.Minute).
			Dur("wait_hour", w.Hour).
			Msg("Request throttled by rate limiter")
	} else {
		guardRateLimitAcquiresTotal.WithLabelValues("granted").Inc()
	}

	return w, nil
}

// TryAcquire admits n requests only if every tier can grant immediately.
// Tokens consumed from earlier tiers are refunded when a later tier refuses.
func (l *Limiter) TryAcquire(n float64) bool {
	if !l.second.TryAcquire(n) {
		return false
	}
	if !l.minute.TryAcquire(n) {
		l.second.Refund(n)
		return false
	}
	if !l.hour.TryAcquire(n) {
		l.second.Refund(n)
		l.minute.Refund(n)
		return false
	}
	return true
}

// Stats is a point-in-time snapshot of available tokens per tier.
type Stats struct {
	SecondTokens float64 `json:"second_tokens"`
	MinuteTokens float64 `json:"minute_tokens"`
	HourTokens   float64 `json:"hour_tokens"`
}

// Stats returns the current token availability per tier.
func (l *Limiter) Stats() Stats {
	return Stats{
		SecondTokens: l.second.Tokens(),
		MinuteTokens: l.minute.Tokens(),
		HourTokens:   l.hour.Tokens(),
	}
}
