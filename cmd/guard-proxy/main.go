// guard-proxy exposes the guard library over HTTP: liveness, readiness,
// a detailed health report, runtime stats, and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spotify-guard/pkg/breaker"
	"github.com/Sternrassler/spotify-guard/pkg/cache"
	"github.com/Sternrassler/spotify-guard/pkg/config"
	"github.com/Sternrassler/spotify-guard/pkg/guard"
	"github.com/Sternrassler/spotify-guard/pkg/logging"
	"github.com/Sternrassler/spotify-guard/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("guard-proxy")

	g, err := guard.New(context.Background(), guard.Config{
		RateLimit: ratelimit.Config{
			PerSecond: cfg.RateLimitPerSecond,
			PerMinute: cfg.RateLimitPerMinute,
			PerHour:   cfg.RateLimitPerHour,
		},
		Breaker: breaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			CallTimeout:      cfg.BreakerCallTimeout,
		},
		Cache: cache.Config{
			Backend:       cfg.CacheBackend,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			MaxSize:       cfg.CacheMaxSize,
		},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize guard")
	}

	// Prime the cache backend connection before accepting traffic.
	warmer := cache.NewWarmer([]cache.WarmTask{
		{Name: "backend-probe", Run: func(ctx context.Context) error {
			_, err := g.Cache().Stats(ctx)
			return err
		}},
	}, logger)
	report := warmer.WarmAll(context.Background())
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Cache warming finished")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.LivenessHandler())
	mux.HandleFunc("/readyz", g.ReadinessHandler())
	mux.HandleFunc("/health", g.HealthHandler())
	mux.HandleFunc("/stats", g.StatsHandler())
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("cache_backend", g.Cache().BackendName(context.Background())).
			Msg("Starting guard proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := g.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Guard shutdown failed")
	}
}
