package guard

import (
	"encoding/json"
	"net/http"

	"github.com/Sternrassler/spotify-guard/pkg/health"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusCode(report health.Report) int {
	if report.Status == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// LivenessHandler answers restart decisions. It never runs probes.
func (g *Guard) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, g.healthSys.Liveness())
	}
}

// ReadinessHandler answers traffic-admission decisions by running only
// critical checks.
func (g *Guard) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := g.healthSys.Readiness(r.Context())
		writeJSON(w, statusCode(report), report)
	}
}

// HealthHandler exposes the full aggregate report including non-critical
// checks. A degraded report still answers 200.
func (g *Guard) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := g.healthSys.CheckAll(r.Context())
		writeJSON(w, statusCode(report), report)
	}
}

// StatsHandler exposes the aggregated per-component counters.
func (g *Guard) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
