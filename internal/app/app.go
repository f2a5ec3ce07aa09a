// Package app wires configuration into the collector and its optional
// indexers. Both binaries build their components here.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/efebarandurmaz/bookchunk/internal/catalog"
	"github.com/efebarandurmaz/bookchunk/internal/chunkstore"
	"github.com/efebarandurmaz/bookchunk/internal/collector"
	"github.com/efebarandurmaz/bookchunk/internal/config"
	"github.com/efebarandurmaz/bookchunk/internal/embedding"
	"github.com/efebarandurmaz/bookchunk/internal/graph"
	neo4jrepo "github.com/efebarandurmaz/bookchunk/internal/graph/neo4j"
	"github.com/efebarandurmaz/bookchunk/internal/llm"
	"github.com/efebarandurmaz/bookchunk/internal/llm/openai"
	"github.com/efebarandurmaz/bookchunk/internal/observability"
	"github.com/efebarandurmaz/bookchunk/internal/processor"
	"github.com/efebarandurmaz/bookchunk/internal/server"
	"github.com/efebarandurmaz/bookchunk/internal/similar"
	"github.com/efebarandurmaz/bookchunk/internal/vector"
	qdrantrepo "github.com/efebarandurmaz/bookchunk/internal/vector/qdrant"
)

// Version is reported by the admin server and tracing resource.
const Version = "0.1.0"

// App holds the components built from a Config.
type App struct {
	Config    *config.Config
	Store     *chunkstore.Store
	Provider  llm.Provider
	Embedder  *embedding.Client
	Collector *collector.Collector
	Vector    vector.Repository
	Graph     graph.Repository

	hooks []server.ShutdownHook
}

// SetupLogging installs the default slog handler from the log section.
func SetupLogging(cfg config.LogConfig, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// NewProviderFactory registers every OpenAI-compatible embedding preset.
func NewProviderFactory() *llm.ProviderFactory {
	factory := llm.NewFactory()
	for _, name := range []string{"upstage", "openai", "ollama", "custom"} {
		name := name
		factory.Register(name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = llm.KnownProviders[name]
			}
			if base == "" {
				return nil, fmt.Errorf("provider %q requires base_url", name)
			}
			model := c.EmbedModel
			if model == "" {
				model = llm.DefaultEmbedModels[name]
			}
			return openai.New(name, c.APIKey, base, model, c.Timeout), nil
		})
	}
	return factory
}

// NewProvider builds the embedding provider from config.
func NewProvider(cfg *config.Config) (llm.Provider, error) {
	pc := llm.DefaultProviderConfig()
	pc.Provider = cfg.Embedding.Provider
	pc.APIKey = cfg.Embedding.APIKey
	pc.BaseURL = cfg.Embedding.BaseURL
	pc.EmbedModel = cfg.Embedding.Model
	pc.RequestsPerMinute = cfg.Embedding.RequestsPerMinute

	provider, err := NewProviderFactory().Create(pc)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("an embedding provider is required (got %q)", cfg.Embedding.Provider)
	}
	return provider, nil
}

// NewEmbedder builds the caching embedding client.
func NewEmbedder(cfg *config.Config, provider llm.Provider) *embedding.Client {
	return embedding.NewClient(provider, embedding.Config{
		MaxRetries:  cfg.Embedding.MaxRetries,
		BaseTimeout: cfg.Embedding.BaseTimeout,
		RetryDelay:  cfg.Embedding.RetryDelay,
		CacheSize:   cfg.Embedding.CacheSize,
	})
}

// OpenStore opens the chunk store.
func OpenStore(cfg *config.Config) (*chunkstore.Store, error) {
	return chunkstore.Open(cfg.Store.Dir, chunkstore.Options{Compress: cfg.Store.Compress})
}

// Build creates every component needed for collection. Optional backends
// (Qdrant, Neo4j) are connected only when configured.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:   cfg,
		Store:    store,
		Provider: provider,
		Embedder: NewEmbedder(cfg, provider),
	}

	var indexers []collector.Indexer
	if cfg.Vector.Host != "" {
		repo, err := qdrantrepo.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Vector = repo
		indexers = append(indexers, vector.NewChunkIndexer(repo, cfg.Vector.BatchSize))
		a.hooks = append(a.hooks, server.RepositoryShutdownHook("qdrant", func(context.Context) error {
			return repo.Close()
		}))
		slog.Info("qdrant mirror enabled", "host", cfg.Vector.Host, "collection", cfg.Vector.Collection)
	}
	if cfg.Graph.URI != "" {
		repo, err := neo4jrepo.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Graph = repo
		indexers = append(indexers, graph.NewChunkIndexer(repo))
		a.hooks = append(a.hooks, server.RepositoryShutdownHook("neo4j", repo.Close))
		slog.Info("neo4j graph enabled", "uri", cfg.Graph.URI)
	}

	search := catalog.New(catalog.Config{
		APIKey:            cfg.Catalog.APIKey,
		BaseURL:           cfg.Catalog.BaseURL,
		Timeout:           cfg.Catalog.Timeout,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
	})
	proc := processor.New(a.Embedder, processor.Config{
		BatchSize:     cfg.Collector.BatchSize,
		MaxWorkers:    cfg.Collector.MaxWorkers,
		MaxAttempts:   cfg.Collector.RecordRetries,
		RetryDelay:    cfg.Collector.RecordDelay,
		ResultTimeout: cfg.Collector.ResultTimeout,
	})
	a.Collector = collector.New(search, proc, store, collector.Config{
		ChunkSize:    cfg.Collector.ChunkSize,
		TargetCount:  cfg.Catalog.TargetCount,
		FlushTimeout: cfg.Collector.FlushTimeout,
		Keywords:     cfg.Collector.Keywords,
	}, indexers...)

	slog.Info("collector ready",
		"provider", provider.Name(),
		"store", store.Dir(),
		"workers", proc.Config().MaxWorkers,
		"indexers", len(indexers),
	)
	return a, nil
}

// SimilarSearcher ranks stored books against a free-text query.
type SimilarSearcher interface {
	Similar(ctx context.Context, query string, topK int) ([]similar.Match, error)
}

// Searcher returns a similarity searcher, using Qdrant when it is enabled.
func (a *App) Searcher() SimilarSearcher {
	if a.Vector != nil {
		return similar.NewVectorSearcher(a.Embedder, a.Vector)
	}
	return similar.NewSearcher(a.Embedder, a.Store)
}

// Hooks returns shutdown hooks for the backends opened by Build.
func (a *App) Hooks() []server.ShutdownHook {
	return a.hooks
}

// Close runs every backend hook directly.
func (a *App) Close(ctx context.Context) {
	for _, h := range a.hooks {
		if err := h.Fn(ctx); err != nil {
			slog.Warn("close failed", "backend", h.Name, "error", err)
		}
	}
	a.hooks = nil
}

// InitTracing starts the tracer provider from the tracing section.
func InitTracing(ctx context.Context, cfg *config.Config, service string) (*observability.TracerProvider, error) {
	tc := observability.DefaultTracingConfig()
	tc.ServiceName = service
	tc.ServiceVersion = Version
	tc.OTLPEndpoint = cfg.Tracing.Endpoint
	if cfg.Tracing.Environment != "" {
		tc.Environment = cfg.Tracing.Environment
	}
	if cfg.Tracing.SampleRate > 0 {
		tc.SampleRate = cfg.Tracing.SampleRate
	}
	return observability.InitTracing(ctx, tc)
}

// healthProbeText is embedded by the health check. After the first success it
// is served from the cache, so repeated probes cost no remote calls.
const healthProbeText = "healthz"

func (a *App) embeddingProbe(ctx context.Context) error {
	_, res := a.Embedder.Create(ctx, healthProbeText)
	return res.Err
}

// NewAdminServer builds the health and metrics server for the app.
func (a *App) NewAdminServer() *server.HealthServer {
	hs := server.NewHealthServer(&server.HealthConfig{
		Version: Version,
		Metrics: observability.Metrics().Handler(),
	})
	hs.RegisterCheck("chunk_store", server.ChunkStoreHealthChecker(a.Store.Dir(), a.Store.NextChunkNumber))
	hs.RegisterCheck("embedding", server.EmbeddingHealthChecker(a.Provider.Name(), a.embeddingProbe))
	if a.Graph != nil {
		hs.RegisterCheck("neo4j", server.DependencyHealthChecker("neo4j", func(ctx context.Context) error {
			_, err := a.Graph.BooksByAuthor(ctx, "")
			return err
		}))
	}
	return hs
}
