package llm

import (
	"context"
	"testing"
	"time"
)

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute != 100 {
		t.Fatalf("expected 100 RPM, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 8 {
		t.Fatalf("expected burst 8, got %d", cfg.BurstSize)
	}
}

func TestRateLimitProvider_Embed(t *testing.T) {
	inner := &stubProvider{name: "test"}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 6000, BurstSize: 5})

	for i := 0; i < 5; i++ {
		vecs, err := rl.Embed(context.Background(), []string{"a"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(vecs) != 1 {
			t.Fatalf("expected 1 vector, got %d", len(vecs))
		}
	}
	if inner.calls != 5 {
		t.Errorf("expected 5 calls, got %d", inner.calls)
	}
}

func TestRateLimitProvider_Throttles(t *testing.T) {
	inner := &stubProvider{name: "test"}
	// One request per second, burst 1: the second call must wait.
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1})

	if _, err := rl.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rl.Embed(ctx, []string{"b"}); err == nil {
		t.Fatal("expected throttled call to fail on short deadline")
	}
	if inner.calls != 1 {
		t.Errorf("throttled call should not reach provider, got %d calls", inner.calls)
	}
}

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &stubProvider{name: "test"}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{})

	start := time.Now()
	for i := 0; i < 50; i++ {
		if _, err := rl.Embed(context.Background(), []string{"x"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Error("unlimited config should not throttle")
	}
}

func TestWithRateLimit_NilProvider(t *testing.T) {
	if WithRateLimit(nil, nil) != nil {
		t.Error("expected nil for nil provider")
	}
}
