package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets use DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds, sized for remote API calls.
func DefaultBuckets() []float64 {
	return []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler serving the Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics, sorted by name, in Prometheus text format.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		writeMetric(w, c.name, "counter", c.help, c.Value())
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		writeMetric(w, g.name, "gauge", g.help, g.Value())
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeMetric(w io.Writer, name, metricType, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %s\n", name, help, name, metricType, name, formatFloat(value))
}

func writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for i, bound := range h.buckets {
		fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", h.name, formatFloat(bound), h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CollectorMetrics contains the collector's metrics.
type CollectorMetrics struct {
	Registry *MetricsRegistry

	// Catalog search
	SearchRequestsTotal *Counter
	SearchErrorsTotal   *Counter
	BooksFetchedTotal   *Counter

	// Embedding
	EmbeddingRequestsTotal   *Counter
	EmbeddingErrorsTotal     *Counter
	EmbeddingRequestDuration *Histogram
	EmbeddingCacheHits       *Counter

	// Processing outcomes
	BooksSuccessTotal *Counter
	BooksSkipTotal    *Counter
	BooksTimeoutTotal *Counter

	// Chunk store
	ChunksSavedTotal *Counter
	ProcessedBooks   *Gauge
	ActiveWorkers    *Gauge
}

// NewCollectorMetrics creates collector metrics on a fresh registry.
func NewCollectorMetrics() *CollectorMetrics {
	r := NewMetricsRegistry()

	return &CollectorMetrics{
		Registry: r,

		SearchRequestsTotal: r.NewCounter("bookchunk_search_requests_total", "Catalog search page requests"),
		SearchErrorsTotal:   r.NewCounter("bookchunk_search_errors_total", "Catalog searches truncated by an error"),
		BooksFetchedTotal:   r.NewCounter("bookchunk_books_fetched_total", "Raw records returned by the catalog"),

		EmbeddingRequestsTotal:   r.NewCounter("bookchunk_embedding_requests_total", "Embedding API requests"),
		EmbeddingErrorsTotal:     r.NewCounter("bookchunk_embedding_errors_total", "Failed embedding API requests"),
		EmbeddingRequestDuration: r.NewHistogram("bookchunk_embedding_request_duration_seconds", "Embedding request duration", nil),
		EmbeddingCacheHits:       r.NewCounter("bookchunk_embedding_cache_hits_total", "Embeddings served from cache"),

		BooksSuccessTotal: r.NewCounter("bookchunk_books_success_total", "Books embedded successfully"),
		BooksSkipTotal:    r.NewCounter("bookchunk_books_skip_total", "Books skipped for missing isbn or contents"),
		BooksTimeoutTotal: r.NewCounter("bookchunk_books_timeout_total", "Books that exhausted their attempts"),

		ChunksSavedTotal: r.NewCounter("bookchunk_chunks_saved_total", "Chunk files written"),
		ProcessedBooks:   r.NewGauge("bookchunk_processed_books", "Books present in the chunk store"),
		ActiveWorkers:    r.NewGauge("bookchunk_active_workers", "Workers currently embedding"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *CollectorMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordEmbeddingRequest records one embedding API call.
func (m *CollectorMetrics) RecordEmbeddingRequest(duration time.Duration, err error) {
	m.EmbeddingRequestsTotal.Inc()
	m.EmbeddingRequestDuration.Observe(duration.Seconds())
	if err != nil {
		m.EmbeddingErrorsTotal.Inc()
	}
}

// RecordOutcome counts a processed record by outcome name.
func (m *CollectorMetrics) RecordOutcome(outcome string) {
	switch outcome {
	case "success":
		m.BooksSuccessTotal.Inc()
	case "skip":
		m.BooksSkipTotal.Inc()
	default:
		m.BooksTimeoutTotal.Inc()
	}
}

// Global metrics instance
var globalMetrics *CollectorMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *CollectorMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewCollectorMetrics()
	})
	return globalMetrics
}
