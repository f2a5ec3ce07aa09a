package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for embedding providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for free-tier APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 100,
		BurstSize:         8,
	}
}

// RateLimitProvider wraps a provider with a token bucket.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60.0)
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &RateLimitProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Embed waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
