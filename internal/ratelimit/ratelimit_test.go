package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketAllowsUpToBurstThenBlocks(t *testing.T) {
	lim := NewTokenBucketLimiter(Config{RequestsPerMinute: 60, BurstLimit: 2})

	if !lim.AllowRequest() {
		t.Fatalf("expected first request to be admitted")
	}
	if !lim.AllowRequest() {
		t.Fatalf("expected second request (within burst) to be admitted")
	}
	if lim.AllowRequest() {
		t.Fatalf("expected third request to be rejected once burst is exhausted")
	}
}

func TestTokenBucketWaitForSlotRespectsContext(t *testing.T) {
	lim := NewTokenBucketLimiter(Config{RequestsPerMinute: 1, BurstLimit: 1})
	lim.AllowRequest() // exhaust the single token

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := lim.WaitForSlot(ctx); err == nil {
		t.Fatalf("expected WaitForSlot to respect a short context deadline")
	}
}

func TestSlidingWindowAdmitsUnderBurstLimit(t *testing.T) {
	lim := NewSlidingWindowLimiter(Config{RequestsPerMinute: 60, BurstLimit: 2})

	if !lim.AllowRequest() || !lim.AllowRequest() {
		t.Fatalf("expected first two requests within the window to be admitted")
	}
	if lim.AllowRequest() {
		t.Fatalf("expected a third request within the same window to be rejected")
	}
}

func TestSlidingWindowResetClearsState(t *testing.T) {
	lim := NewSlidingWindowLimiter(Config{RequestsPerMinute: 60, BurstLimit: 1})
	lim.AllowRequest()
	if lim.AllowRequest() {
		t.Fatalf("expected the limiter to be exhausted before Reset")
	}
	lim.Reset()
	if !lim.AllowRequest() {
		t.Fatalf("expected Reset to clear accumulated timestamps")
	}
}

// TestSlidingWindowNeverExceedsMaxOfRateAndBurstProperty fires many
// rapid-fire admission attempts and checks the count admitted within a
// single 60-second window never exceeds max(requestsPerMinute, burstLimit).
func TestSlidingWindowNeverExceedsMaxOfRateAndBurstProperty(t *testing.T) {
	const rpm, burst = 10, 25
	lim := NewSlidingWindowLimiter(Config{RequestsPerMinute: rpm, BurstLimit: burst})

	admitted := 0
	for i := 0; i < 200; i++ {
		if lim.AllowRequest() {
			admitted++
		}
	}

	limit := rpm
	if burst > limit {
		limit = burst
	}
	if admitted > limit {
		t.Fatalf("admitted %d requests in one window, want <= max(rpm, burst) = %d", admitted, limit)
	}
}

func TestExecuteRunsFnAfterAdmission(t *testing.T) {
	lim := NewTokenBucketLimiter(Config{RequestsPerMinute: 6000, BurstLimit: 5})
	called := false
	err := lim.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !called {
		t.Fatalf("expected fn to run once admitted")
	}
}
