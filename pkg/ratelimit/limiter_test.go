package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(cfg Config) *Limiter {
	return NewLimiter(cfg, zerolog.Nop())
}

func TestLimiter_AcquireAllTiersGrant(t *testing.T) {
	l := newTestLimiter(Config{PerSecond: 10, PerMinute: 100, PerHour: 1000})

	w, err := l.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if w.Throttled() {
		t.Errorf("fresh limiter should not throttle, got wait %v", w.Total())
	}

	stats := l.Stats()
	if stats.SecondTokens > 9.001 {
		t.Errorf("second tier tokens = %v, want <= 9", stats.SecondTokens)
	}
	if stats.MinuteTokens > 99.001 {
		t.Errorf("minute tier tokens = %v, want <= 99", stats.MinuteTokens)
	}
	if stats.HourTokens > 999.001 {
		t.Errorf("hour tier tokens = %v, want <= 999", stats.HourTokens)
	}
}

func TestLimiter_AcquireWaitsOnDrainedTier(t *testing.T) {
	// Second tier drains after 2 requests; third must wait for refill.
	l := newTestLimiter(Config{PerSecond: 2, PerMinute: 1000, PerHour: 10000})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Acquire(ctx, 1); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}

	start := time.Now()
	w, err := l.Acquire(ctx, 1)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !w.Throttled() {
		t.Error("expected throttling after draining second tier")
	}
	if w.Second <= 0 {
		t.Errorf("wait attributed to second tier = %v, want > 0", w.Second)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected a refill wait", elapsed)
	}
}

func TestLimiter_TryAcquire(t *testing.T) {
	l := newTestLimiter(Config{PerSecond: 1, PerMinute: 100, PerHour: 1000})

	if !l.TryAcquire(1) {
		t.Fatal("first TryAcquire should succeed")
	}
	if l.TryAcquire(1) {
		t.Error("second TryAcquire should fail with second tier drained")
	}
}

func TestLimiter_TryAcquireRefundsEarlierTiers(t *testing.T) {
	// Minute tier is the bottleneck: after it drains, refused attempts
	// must not leak second-tier tokens.
	l := newTestLimiter(Config{PerSecond: 10, PerMinute: 2, PerHour: 1000})

	if !l.TryAcquire(2) {
		t.Fatal("TryAcquire(2) should succeed")
	}
	if l.TryAcquire(1) {
		t.Fatal("TryAcquire should fail once minute tier is drained")
	}

	stats := l.Stats()
	if stats.SecondTokens < 7.9 {
		t.Errorf("second tier tokens = %v, refused acquire leaked tokens", stats.SecondTokens)
	}
}

func TestLimiter_AcquireCancelledRefunds(t *testing.T) {
	// Hour tier blocks; cancellation must credit back the second and
	// minute tier tokens that were already consumed.
	l := newTestLimiter(Config{PerSecond: 10, PerMinute: 100, PerHour: 1})

	if !l.TryAcquire(1) {
		t.Fatal("TryAcquire should drain the hour tier")
	}
	before := l.Stats()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := l.Acquire(ctx, 1); err == nil {
		t.Fatal("Acquire should fail when ctx expires before hour tier refills")
	}

	after := l.Stats()
	if after.SecondTokens < before.SecondTokens-0.1 {
		t.Errorf("second tier tokens dropped from %v to %v after cancelled acquire",
			before.SecondTokens, after.SecondTokens)
	}
	if after.MinuteTokens < before.MinuteTokens-0.1 {
		t.Errorf("minute tier tokens dropped from %v to %v after cancelled acquire",
			before.MinuteTokens, after.MinuteTokens)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PerSecond <= 0 || cfg.PerMinute <= 0 || cfg.PerHour <= 0 {
		t.Errorf("DefaultConfig has non-positive tier: %+v", cfg)
	}
}
