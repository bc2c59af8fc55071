// Package config loads guard configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	// LogLevel is debug, info, warn, or error.
	LogLevel string `mapstructure:"log_level"`

	// LogPretty switches to human-readable console output.
	LogPretty bool `mapstructure:"log_pretty"`

	// Port is the HTTP listen port of the proxy binary.
	Port string `mapstructure:"port"`

	// CacheBackend is "memory" or "redis".
	CacheBackend string `mapstructure:"cache_backend"`

	// CacheMaxSize bounds the in-process cache entry count.
	CacheMaxSize int `mapstructure:"cache_max_size"`

	// RedisAddr is the Redis host:port for the redis backend.
	RedisAddr string `mapstructure:"redis_addr"`

	// RedisPassword is optional.
	RedisPassword string `mapstructure:"redis_password"`

	// RedisDB selects the Redis database number.
	RedisDB int `mapstructure:"redis_db"`

	// Rate limiter tier quotas.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitPerMinute float64 `mapstructure:"rate_limit_per_minute"`
	RateLimitPerHour   float64 `mapstructure:"rate_limit_per_hour"`

	// Circuit breaker defaults.
	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerRecoveryTimeout  time.Duration `mapstructure:"breaker_recovery_timeout"`
	BreakerSuccessThreshold int           `mapstructure:"breaker_success_threshold"`
	BreakerCallTimeout      time.Duration `mapstructure:"breaker_call_timeout"`
}

// Load reads configuration from environment variables (CACHE_BACKEND,
// REDIS_ADDR, RATE_LIMIT_PER_SECOND, ...), applying defaults for anything
// unset. A .env file in the working directory is honored when present.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("config: load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("port", "8080")
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_max_size", 1000)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rate_limit_per_second", 10)
	v.SetDefault("rate_limit_per_minute", 100)
	v.SetDefault("rate_limit_per_hour", 1000)
	v.SetDefault("breaker_failure_threshold", 5)
	v.SetDefault("breaker_recovery_timeout", "30s")
	v.SetDefault("breaker_success_threshold", 2)
	v.SetDefault("breaker_call_timeout", "10s")
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface env vars through Unmarshal;
	// bind each key explicitly.
	for _, key := range []string{
		"log_level", "log_pretty", "port",
		"cache_backend", "cache_max_size",
		"redis_addr", "redis_password", "redis_db",
		"rate_limit_per_second", "rate_limit_per_minute", "rate_limit_per_hour",
		"breaker_failure_threshold", "breaker_recovery_timeout",
		"breaker_success_threshold", "breaker_call_timeout",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the components would choke on.
func (c Config) Validate() error {
	if c.CacheBackend != "memory" && c.CacheBackend != "redis" {
		return fmt.Errorf("config: cache_backend must be memory or redis (got %q)", c.CacheBackend)
	}
	if c.CacheBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("config: redis_addr is required for the redis backend")
	}
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("config: cache_max_size must be positive (got %d)", c.CacheMaxSize)
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitPerMinute <= 0 || c.RateLimitPerHour <= 0 {
		return fmt.Errorf("config: rate limit tiers must be positive")
	}
	if c.BreakerFailureThreshold <= 0 || c.BreakerSuccessThreshold <= 0 {
		return fmt.Errorf("config: breaker thresholds must be positive")
	}
	return nil
}
