// Package ratelimit implements the per-provider rate limiter: one
// interface with two interchangeable strategies, a token bucket backed by
// golang.org/x/time/rate and a sliding window backed by timestamp
// bookkeeping.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pollInterval bounds how long waitForSlot blocks between admission
// re-checks, per the cooperative-wait contract.
const pollInterval = 100 * time.Millisecond

// Config configures a limiter: the sustained rate and an optional burst
// capacity. BurstLimit of 0 defaults to RequestsPerMinute.
type Config struct {
	RequestsPerMinute int
	BurstLimit        int
}

func (c Config) burst() int {
	if c.BurstLimit > 0 {
		return c.BurstLimit
	}
	return c.RequestsPerMinute
}

// Limiter is the interface both strategies implement.
type Limiter interface {
	// AllowRequest is a non-blocking admission check.
	AllowRequest() bool
	// WaitForSlot blocks, polling at pollInterval granularity, until a
	// request is admitted or ctx is done.
	WaitForSlot(ctx context.Context) error
	// Execute waits for a slot then runs fn.
	Execute(ctx context.Context, fn func() error) error
	// Reset clears any accumulated state.
	Reset()
	// UpdateConfig swaps the limiter's parameters.
	UpdateConfig(cfg Config)
}

// TokenBucketLimiter admits requests at requestsPerMinute/60000 tokens per
// millisecond, up to a burst capacity, using golang.org/x/time/rate.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

// NewTokenBucketLimiter constructs a token-bucket limiter from cfg.
func NewTokenBucketLimiter(cfg Config) *TokenBucketLimiter {
	return &TokenBucketLimiter{cfg: cfg, limiter: newRateLimiter(cfg)}
}

func newRateLimiter(cfg Config) *rate.Limiter {
	perSecond := float64(cfg.RequestsPerMinute) / 60.0
	return rate.NewLimiter(rate.Limit(perSecond), cfg.burst())
}

func (t *TokenBucketLimiter) AllowRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter.Allow()
}

func (t *TokenBucketLimiter) WaitForSlot(ctx context.Context) error {
	for {
		if t.AllowRequest() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (t *TokenBucketLimiter) Execute(ctx context.Context, fn func() error) error {
	if err := t.WaitForSlot(ctx); err != nil {
		return err
	}
	return fn()
}

// Reset discards accumulated tokens by rebuilding the underlying limiter
// from the current configuration; x/time/rate has no direct "refill to
// full" operation.
func (t *TokenBucketLimiter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter = newRateLimiter(t.cfg)
}

func (t *TokenBucketLimiter) UpdateConfig(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.limiter.SetLimit(rate.Limit(float64(cfg.RequestsPerMinute) / 60.0))
	t.limiter.SetBurst(cfg.burst())
}

// SlidingWindowLimiter admits a request iff fewer than burstLimit request
// timestamps fall within the trailing 60-second window.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	cfg        Config
	timestamps []time.Time
}

// NewSlidingWindowLimiter constructs a sliding-window limiter from cfg.
func NewSlidingWindowLimiter(cfg Config) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{cfg: cfg}
}

const slidingWindow = 60 * time.Second

func (s *SlidingWindowLimiter) AllowRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.timestamps = prune(s.timestamps, now)
	if len(s.timestamps) >= s.cfg.burst() {
		return false
	}
	s.timestamps = append(s.timestamps, now)
	return true
}

func prune(timestamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-slidingWindow)
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (s *SlidingWindowLimiter) WaitForSlot(ctx context.Context) error {
	for {
		if s.AllowRequest() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *SlidingWindowLimiter) Execute(ctx context.Context, fn func() error) error {
	if err := s.WaitForSlot(ctx); err != nil {
		return err
	}
	return fn()
}

func (s *SlidingWindowLimiter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps = nil
}

func (s *SlidingWindowLimiter) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
