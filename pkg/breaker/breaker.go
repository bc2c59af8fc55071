// Package breaker implements per-dependency circuit breaking. A breaker
// stops calling a failing upstream dependency for a cooldown period so a
// struggling service gets room to recover instead of being hammered.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Sentinel errors returned by the breaker.
var (
	// ErrOpen is returned when the breaker rejects a call without invoking
	// the wrapped unit of work. Distinct from an upstream failure so callers
	// can tell "upstream is down" apart from "we chose not to ask".
	ErrOpen = errors.New("breaker: circuit open")

	// ErrCallTimeout is returned when the wrapped unit of work exceeds the
	// configured per-call timeout. Counted as a failure.
	ErrCallTimeout = errors.New("breaker: call timed out")
)

// Prometheus metrics for circuit breakers.
var (
	guardBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guard_breaker_state",
		Help: "Circuit breaker state by dependency (0=closed, 1=open, 2=half-open)",
	}, []string{"dependency"})

	guardBreakerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_breaker_calls_total",
		Help: "Circuit breaker call outcomes by dependency",
	}, []string{"dependency", "outcome"})
)

// State is the breaker state.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota

	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds and timeouts.
type Config struct {
	// FailureThreshold is the number of consecutive failures while closed
	// that opens the breaker.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker waits before probing.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// CallTimeout bounds each wrapped call. A call exceeding it counts as
	// a failure. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultConfig returns thresholds suitable for a remote HTTP dependency.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		CallTimeout:      10 * time.Second,
	}
}

// Breaker is a circuit breaker for one named dependency. Create breakers
// through a Registry so each dependency gets exactly one.
type Breaker struct {
	name   string
	config Config
	logger zerolog.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	totalCalls      int64
	totalSuccesses  int64
	totalFailures   int64
	totalRejections int64

	// now is replaceable for deterministic tests.
	now func() time.Time
}

func newBreaker(name string, cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}

	guardBreakerState.WithLabelValues(name).Set(float64(StateClosed))

	return &Breaker{
		name:   name,
		config: cfg,
		logger: logger.With().Str("dependency", name).Logger(),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Call runs the unit of work through the breaker. An open breaker rejects
// with ErrOpen without invoking the unit; a unit exceeding CallTimeout is
// treated as a failure. Errors from the unit itself are passed through
// unchanged.
func (b *Breaker) Call(ctx context.Context, unit func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := b.run(ctx, unit)
	b.afterCall(err)
	return err
}

// run executes the unit, enforcing the per-call timeout even when the unit
// ignores its context.
func (b *Breaker) run(ctx context.Context, unit func(context.Context) error) error {
	if b.config.CallTimeout <= 0 {
		return unit(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- unit(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %q exceeded %v", ErrCallTimeout, b.name, b.config.CallTimeout)
	}
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.transitionLocked(StateHalfOpen)
		} else {
			b.totalRejections++
			guardBreakerCallsTotal.WithLabelValues(b.name, "rejected").Inc()
			return fmt.Errorf("%w: dependency %q", ErrOpen, b.name)
		}
	}

	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.totalFailures++
		guardBreakerCallsTotal.WithLabelValues(b.name, "failure").Inc()
		b.onFailureLocked()
		return
	}

	b.totalSuccesses++
	guardBreakerCallsTotal.WithLabelValues(b.name, "success").Inc()
	b.onSuccessLocked()
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case StateClosed:
		b.failureCount++
		b.lastFailureTime = b.now()
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// Probe failed; back to open, restart the recovery window.
		b.lastFailureTime = b.now()
		b.successCount = 0
		b.transitionLocked(StateOpen)
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	if to == StateHalfOpen {
		b.successCount = 0
	}

	guardBreakerState.WithLabelValues(b.name).Set(float64(to))

	event := b.logger.Info()
	if to == StateOpen {
		event = b.logger.Warn()
	}
	event.
		Str("from", from.String()).
		Str("to", to.String()).
		Int("failure_count", b.failureCount).
		Msg("Circuit breaker state change")
}

// State returns the current state, applying the recovery transition if the
// open window has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

// Reset forces the breaker back to closed with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.successCount = 0
	if b.state != StateClosed {
		b.transitionLocked(StateClosed)
	}
}

// Stats is a snapshot of a breaker's counters and state.
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	TotalCalls      int64     `json:"total_calls"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:            b.name,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		TotalCalls:      b.totalCalls,
		TotalSuccesses:  b.totalSuccesses,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
	}
}
