// Package embedding turns book descriptions into vectors with a bounded
// cache and escalating per-attempt deadlines.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/llm"
	"github.com/efebarandurmaz/bookchunk/internal/observability"
	"golang.org/x/sync/singleflight"
)

// Config controls retry behaviour of the Client.
type Config struct {
	MaxRetries  int           // Attempts per text (default 3)
	BaseTimeout time.Duration // Attempt N runs under BaseTimeout*N (default 10s)
	RetryDelay  time.Duration // Pause after a failed attempt (default 1s)
	CacheSize   int           // LRU capacity (default 1000)
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseTimeout: 10 * time.Second,
		RetryDelay:  1 * time.Second,
		CacheSize:   DefaultCacheSize,
	}
}

// Result describes how a vector was obtained.
type Result struct {
	Attempts int
	Cached   bool
	Err      error // last error when no vector was produced
}

// ErrNoEmbedding is reported when every attempt failed.
var ErrNoEmbedding = errors.New("embedding: no vector produced")

// Client wraps a provider with caching and retries.
type Client struct {
	provider llm.Provider
	cache    *Cache
	config   Config
	sleep    func(ctx context.Context, d time.Duration) error

	// flight coalesces concurrent cache misses for identical text.
	flight singleflight.Group
}

type created struct {
	vec Vector
	res Result
}

// NewClient creates a Client. Zero config fields take defaults.
func NewClient(provider llm.Provider, config Config) *Client {
	def := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BaseTimeout <= 0 {
		config.BaseTimeout = def.BaseTimeout
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return &Client{
		provider: provider,
		cache:    NewCache(config.CacheSize),
		config:   config,
		sleep:    sleepCtx,
	}
}

// Cache exposes the client's cache, mainly for inspection.
func (c *Client) Cache() *Cache { return c.cache }

// Create returns the embedding for text. Identical text is served from the
// cache without contacting the provider, and concurrent callers asking for the
// same text share a single remote call. On failure the returned Vector is
// zero and Result.Err is set.
func (c *Client) Create(ctx context.Context, text string) (Vector, Result) {
	if v, ok := c.cache.Get(text); ok {
		observability.Metrics().EmbeddingCacheHits.Inc()
		return v, Result{Cached: true}
	}

	ch := c.flight.DoChan(text, func() (any, error) {
		if v, ok := c.cache.Get(text); ok {
			return created{vec: v, res: Result{Cached: true}}, nil
		}
		v, res := c.create(ctx, text)
		return created{vec: v, res: res}, nil
	})
	select {
	case <-ctx.Done():
		return Vector{}, Result{Err: ctx.Err()}
	case r := <-ch:
		out := r.Val.(created)
		return out.vec, out.res
	}
}

func (c *Client) create(ctx context.Context, text string) (Vector, Result) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		timeout := c.config.BaseTimeout * time.Duration(attempt)

		v, err := c.attempt(ctx, text, timeout)
		if err == nil {
			c.cache.Add(text, v)
			return v, Result{Attempts: attempt}
		}
		lastErr = err

		if ctx.Err() != nil {
			return Vector{}, Result{Attempts: attempt, Err: ctx.Err()}
		}

		if errors.Is(err, context.DeadlineExceeded) {
			// Slow attempt: the next one gets a longer deadline straight away.
			slog.Warn("embedding attempt timed out",
				"attempt", attempt, "max", c.config.MaxRetries, "timeout", timeout)
			continue
		}

		slog.Warn("embedding attempt failed",
			"attempt", attempt, "max", c.config.MaxRetries, "error", err)
		if attempt < c.config.MaxRetries {
			if err := c.sleep(ctx, c.config.RetryDelay); err != nil {
				return Vector{}, Result{Attempts: attempt, Err: err}
			}
		}
	}

	return Vector{}, Result{
		Attempts: c.config.MaxRetries,
		Err:      fmt.Errorf("%w after %d attempts: %v", ErrNoEmbedding, c.config.MaxRetries, lastErr),
	}
}

func (c *Client) attempt(ctx context.Context, text string, timeout time.Duration) (Vector, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observability.StartEmbeddingSpan(attemptCtx, c.provider.Name())
	defer span.End()

	start := time.Now()
	vecs, err := c.provider.Embed(ctx, []string{text})
	observability.Metrics().RecordEmbeddingRequest(time.Since(start), err)
	if err == nil && (len(vecs) != 1 || len(vecs[0]) == 0) {
		err = fmt.Errorf("embedding: provider returned %d vectors", len(vecs))
	}
	if err != nil {
		observability.RecordError(span, err)
		return Vector{}, err
	}
	return NewVector(vecs[0]), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
