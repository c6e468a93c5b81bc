package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("AGGREGATION_CACHE_TTL")
	os.Unsetenv("PRICE_CACHE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, DefaultCacheTTL)
	}
	if cfg.PriceCacheTTL != DefaultPriceCacheTTL {
		t.Errorf("PriceCacheTTL = %v, want %v", cfg.PriceCacheTTL, DefaultPriceCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	if err := os.Setenv("AGGREGATION_CACHE_TTL", "90s"); err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("AGGREGATION_CACHE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
}

func TestRateLimitAndBreakerDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rl := cfg.RateLimitFor("evm")
	if rl != DefaultRateLimitConfig() {
		t.Errorf("RateLimitFor(unknown) = %+v, want default", rl)
	}

	cb := cfg.CircuitBreakerFor("evm")
	if cb != DefaultCircuitBreakerConfig() {
		t.Errorf("CircuitBreakerFor(unknown) = %+v, want default", cb)
	}

	cfg.RateLimit["evm"] = RateLimitConfig{RequestsPerMinute: 10, BurstLimit: 20}
	if got := cfg.RateLimitFor("evm"); got.RequestsPerMinute != 10 || got.BurstLimit != 20 {
		t.Errorf("RateLimitFor(evm) = %+v, want {10 20}", got)
	}
}
