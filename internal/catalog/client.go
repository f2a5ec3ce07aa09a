// Package catalog queries the Kakao book search API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/observability"
)

const (
	// DefaultBaseURL is the Kakao developers API host.
	DefaultBaseURL = "https://dapi.kakao.com"
	// MaxPageSize is the largest page the API serves.
	MaxPageSize = 50
	// DefaultTargetCount is how many records are requested per keyword.
	DefaultTargetCount = 300
)

// Config holds configuration for the search client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single page request (default 30s).
	Timeout time.Duration
	// RequestsPerSecond throttles page requests (0 = unlimited).
	RequestsPerSecond float64
}

// Client fetches book records page by page.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type searchResponse struct {
	Documents []book.Record `json:"documents"`
	Meta      struct {
		TotalCount    int  `json:"total_count"`
		PageableCount int  `json:"pageable_count"`
		IsEnd         bool `json:"is_end"`
	} `json:"meta"`
}

// New creates a search client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Search returns up to target records for keyword, in API order.
//
// Pagination stops at the target, on an empty or final page, or on the first
// failed request. Failures only truncate the result; the returned error is
// non-nil only when ctx was cancelled.
func (c *Client) Search(ctx context.Context, keyword string, target int) ([]book.Record, error) {
	if target <= 0 {
		target = DefaultTargetCount
	}

	ctx, span := observability.StartSearchSpan(ctx, keyword, target)
	defer span.End()

	m := observability.Metrics()
	var all []book.Record
	for page := 1; len(all) < target; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			m.SearchErrorsTotal.Inc()
			observability.RecordError(span, err)
			slog.Warn("catalog search truncated", "keyword", keyword, "page", page, "fetched", len(all), "error", err)
			break
		}

		size := min(MaxPageSize, target-len(all))
		m.SearchRequestsTotal.Inc()
		resp, err := c.fetchPage(ctx, keyword, page, size)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			m.SearchErrorsTotal.Inc()
			observability.RecordError(span, err)
			slog.Warn("catalog search truncated", "keyword", keyword, "page", page, "fetched", len(all), "error", err)
			break
		}
		if len(resp.Documents) == 0 {
			break
		}

		all = append(all, resp.Documents...)
		if resp.Meta.IsEnd {
			break
		}
	}

	if len(all) > target {
		all = all[:target]
	}
	m.BooksFetchedTotal.Add(float64(len(all)))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, keyword string, page, size int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	q.Set("target", "title")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/search/book?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: %s", resp.Status)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return &out, nil
}
