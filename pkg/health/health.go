// Package health aggregates named probes into liveness and readiness
// signals. Critical checks gate readiness; non-critical checks can only
// degrade the aggregate, never fail it.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrProbeTimeout marks a probe that did not answer within its timeout.
var ErrProbeTimeout = errors.New("health: probe timed out")

var guardHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "guard_health_status",
	Help: "Health status by check (1=healthy, 0=unhealthy)",
}, []string{"check"})

// Status is the aggregate health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe answers whether one dependency is usable right now.
type Probe func(ctx context.Context) error

// defaultProbeTimeout applies when a check is registered without one.
const defaultProbeTimeout = 5 * time.Second

// check is one registered probe plus its bookkeeping.
type check struct {
	name     string
	probe    Probe
	critical bool
	timeout  time.Duration

	mu            sync.Mutex
	lastStatus    bool
	lastCheckTime time.Time
	totalChecks   int64
	totalFailures int64
}

// CheckResult is the outcome of one probe run.
type CheckResult struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"healthy"`
	Critical bool          `json:"critical"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report is the aggregate view exposed by the health endpoint.
type Report struct {
	Status        Status        `json:"status"`
	Checks        []CheckResult `json:"checks"`
	UptimeSeconds float64       `json:"uptime_seconds"`
}

// System owns the registered checks. One instance per process.
type System struct {
	logger    zerolog.Logger
	startedAt time.Time

	mu     sync.Mutex
	checks map[string]*check
}

// NewSystem creates an empty health system.
func NewSystem(logger zerolog.Logger) *System {
	return &System{
		logger:    logger,
		startedAt: time.Now(),
		checks:    make(map[string]*check),
	}
}

// RegisterCheck adds a named probe. Critical checks gate readiness and can
// fail the aggregate; non-critical checks can only degrade it. A
// non-positive timeout uses the default.
func (s *System) RegisterCheck(name string, probe Probe, critical bool, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = &check{
		name:     name,
		probe:    probe,
		critical: critical,
		timeout:  timeout,
	}
}

// runCheck executes one probe under its own timeout. A probe that blocks
// past its deadline is recorded as unhealthy without waiting for it.
func (s *System) runCheck(ctx context.Context, c *check) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- c.probe(probeCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-probeCtx.Done():
		err = fmt.Errorf("%w: %q after %v", ErrProbeTimeout, c.name, c.timeout)
	}
	duration := time.Since(start)

	healthy := err == nil

	c.mu.Lock()
	c.lastStatus = healthy
	c.lastCheckTime = time.Now()
	c.totalChecks++
	if !healthy {
		c.totalFailures++
	}
	c.mu.Unlock()

	if healthy {
		guardHealthStatus.WithLabelValues(c.name).Set(1)
	} else {
		guardHealthStatus.WithLabelValues(c.name).Set(0)
		s.logger.Warn().Err(err).Str("check", c.name).Bool("critical", c.critical).
			Msg("Health check failed")
	}

	result := CheckResult{
		Name:     c.name,
		Healthy:  healthy,
		Critical: c.critical,
		Duration: duration,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// snapshot copies the registered checks so probes run without holding the
// registry lock.
func (s *System) snapshot(criticalOnly bool) []*check {
	s.mu.Lock()
	defer s.mu.Unlock()

	checks := make([]*check, 0, len(s.checks))
	for _, c := range s.checks {
		if criticalOnly && !c.critical {
			continue
		}
		checks = append(checks, c)
	}
	return checks
}

// runAll executes the given checks fully in parallel; each probe's timeout
// is enforced independently so one stuck probe cannot stall the report.
func (s *System) runAll(ctx context.Context, checks []*check) []CheckResult {
	results := make([]CheckResult, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c *check) {
			defer wg.Done()
			results[i] = s.runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Name < results[b].Name })
	return results
}

func aggregate(results []CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Healthy {
			continue
		}
		if r.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// CheckAll runs every registered probe concurrently and aggregates:
// unhealthy if any critical check failed, degraded if only non-critical
// checks failed, healthy otherwise.
func (s *System) CheckAll(ctx context.Context) Report {
	results := s.runAll(ctx, s.snapshot(false))
	return Report{
		Status:        aggregate(results),
		Checks:        results,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
}

// Liveness is a constant-time "process is responsive" signal independent
// of registered checks, for restart decisions.
func (s *System) Liveness() Report {
	return Report{
		Status:        StatusHealthy,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
}

// Readiness runs only critical checks, for traffic-admission decisions.
func (s *System) Readiness(ctx context.Context) Report {
	results := s.runAll(ctx, s.snapshot(true))
	return Report{
		Status:        aggregate(results),
		Checks:        results,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
}

// CheckStats is per-check bookkeeping for the stats surface.
type CheckStats struct {
	Name          string    `json:"name"`
	Critical      bool      `json:"critical"`
	LastStatus    bool      `json:"last_status"`
	LastCheckTime time.Time `json:"last_check_time"`
	TotalChecks   int64     `json:"total_checks"`
	TotalFailures int64     `json:"total_failures"`
}

// Stats returns bookkeeping for every registered check, sorted by name.
func (s *System) Stats() []CheckStats {
	checks := s.snapshot(false)

	out := make([]CheckStats, 0, len(checks))
	for _, c := range checks {
		c.mu.Lock()
		out = append(out, CheckStats{
			Name:          c.name,
			Critical:      c.critical,
			LastStatus:    c.lastStatus,
			LastCheckTime: c.lastCheckTime,
			TotalChecks:   c.totalChecks,
			TotalFailures: c.totalFailures,
		})
		c.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
