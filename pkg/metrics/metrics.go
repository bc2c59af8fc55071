// Package metrics provides the centralized Prometheus registry reference for
// the guard library. All metrics are defined in their respective packages
// (ratelimit, breaker, retry, fallback, cache, health) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the guard library.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - guard_rate_limit_acquires_total{outcome} (Counter): Acquisitions by outcome (granted, throttled, cancelled)
//   - guard_rate_limit_wait_seconds{tier} (Histogram): Throttle wait duration by tier (second, minute, hour)
//
// Circuit Breaker Metrics (pkg/breaker):
//   - guard_breaker_state{dependency} (Gauge): Current state (0=closed, 1=open, 2=half-open)
//   - guard_breaker_calls_total{dependency, outcome} (Counter): Calls by outcome (success, failure, rejected)
//
// Retry Metrics (pkg/retry):
//   - guard_retries_total{policy} (Counter): Retry attempts by policy
//   - guard_retry_backoff_seconds{policy} (Histogram): Backoff duration by policy
//   - guard_retry_exhausted_total{policy} (Counter): Operations that exhausted max attempts
//
// Fallback Metrics (pkg/fallback):
//   - guard_fallbacks_total{outcome} (Counter): Chain executions by outcome (primary, fallback, exhausted)
//
// Cache Metrics (pkg/cache):
//   - guard_cache_hits_total{backend} (Counter): Cache hits by backend
//   - guard_cache_misses_total{backend} (Counter): Cache misses by backend
//   - guard_cache_evictions_total (Counter): Entries evicted from the in-process cache by LRU pressure
//   - guard_cache_errors_total{operation} (Counter): Cache operation errors
//   - guard_cache_invalidations_total{resource_type} (Counter): Invalidation events by resource type
//   - guard_cache_warm_tasks_total{outcome} (Counter): Warm tasks by outcome (success, failure)
//
// Health Metrics (pkg/health):
//   - guard_health_status{check} (Gauge): Per-check status (1=healthy, 0=unhealthy)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(guard_cache_hits_total[5m])) /
//   (sum(rate(guard_cache_hits_total[5m])) + sum(rate(guard_cache_misses_total[5m])))
//
//   # Open Breakers
//   guard_breaker_state == 1
//
//   # P95 Throttle Wait
//   histogram_quantile(0.95, rate(guard_rate_limit_wait_seconds_bucket[5m]))
//
//   # Retry Exhaustion Rate
//   rate(guard_retry_exhausted_total[5m])
