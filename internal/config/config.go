// Package config provides the configuration knobs the host application may
// set on the aggregation core. Values load from environment variables and
// an optional .env file, following the same convention the rest of this
// codebase's services use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all core configuration: cache freshness, per-provider
// protection settings, and logging.
type Config struct {
	CacheTTL      time.Duration
	PriceCacheTTL time.Duration
	RateLimit     map[string]RateLimitConfig
	CircuitBreaker map[string]CircuitBreakerConfig
	Logging       LoggingConfig
}

// RateLimitConfig configures a provider's rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstLimit        int // 0 means "default to RequestsPerMinute"
}

// CircuitBreakerConfig configures a provider's circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRetries  int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultCacheTTL is the default portfolio cache freshness window.
const DefaultCacheTTL = 5 * time.Minute

// DefaultPriceCacheTTL is the default TTL a valuator adapter should apply
// to cached prices.
const DefaultPriceCacheTTL = 60 * time.Second

// DefaultRateLimitConfig returns sane per-provider defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 60, BurstLimit: 0}
}

// DefaultCircuitBreakerConfig returns sane per-provider defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second, HalfOpenRetries: 2}
}

// Load builds a Config from an optional .env file and environment
// variables, falling back to the defaults above for anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: error loading .env file: %w", err)
	}

	cfg := &Config{
		CacheTTL:       getEnvAsDuration("AGGREGATION_CACHE_TTL", DefaultCacheTTL),
		PriceCacheTTL:  getEnvAsDuration("PRICE_CACHE_TTL", DefaultPriceCacheTTL),
		RateLimit:      map[string]RateLimitConfig{},
		CircuitBreaker: map[string]CircuitBreakerConfig{},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// RateLimitFor returns the configured rate limit for a provider, or the
// default if none was set.
func (c *Config) RateLimitFor(provider string) RateLimitConfig {
	if rl, ok := c.RateLimit[provider]; ok {
		return rl
	}
	return DefaultRateLimitConfig()
}

// CircuitBreakerFor returns the configured breaker settings for a
// provider, or the default if none was set.
func (c *Config) CircuitBreakerFor(provider string) CircuitBreakerConfig {
	if cb, ok := c.CircuitBreaker[provider]; ok {
		return cb
	}
	return DefaultCircuitBreakerConfig()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
