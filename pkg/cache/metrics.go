package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	guardCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_cache_hits_total",
		Help: "Cache hits by backend",
	}, []string{"backend"})

	guardCacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_cache_misses_total",
		Help: "Cache misses by backend",
	}, []string{"backend"})

	guardCacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_cache_evictions_total",
		Help: "Entries evicted from the in-process cache by LRU pressure",
	})

	guardCacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_cache_errors_total",
		Help: "Cache operation errors by operation",
	}, []string{"operation"})

	guardCacheInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_cache_invalidations_total",
		Help: "Cache invalidations by resource type",
	}, []string{"resource_type"})

	guardCacheWarmTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_cache_warm_tasks_total",
		Help: "Cache warming task outcomes",
	}, []string{"outcome"})
)
