package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any embedding provider.
type ProviderConfig struct {
	Provider   string // "upstage", "openai", "ollama", "custom"
	APIKey     string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string

	// Transport timeout of the underlying HTTP client. Per-attempt deadlines
	// are applied by the caller through the context.
	Timeout time.Duration

	// RequestsPerMinute throttles calls to the provider (0 = unlimited).
	RequestsPerMinute int
}

// DefaultProviderConfig returns a config targeting Upstage Solar embeddings.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:   "upstage",
		EmbedModel: "embedding-passage",
		Timeout:    2 * time.Minute,
	}
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider is
// empty or "none".
// The returned provider is wrapped with a rate limiter when RequestsPerMinute is set.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		return WithRateLimit(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}), nil
	}
	return provider, nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders documents the built-in provider presets. Every preset speaks
// the OpenAI-compatible /embeddings API.
//
//	upstage → https://api.upstage.ai/v1/solar
//	openai  → https://api.openai.com/v1
//	ollama  → http://localhost:11434/v1
var KnownProviders = map[string]string{
	"upstage": "https://api.upstage.ai/v1/solar",
	"openai":  "https://api.openai.com/v1",
	"ollama":  "http://localhost:11434/v1",
}

// DefaultEmbedModels maps presets to the model used when none is configured.
var DefaultEmbedModels = map[string]string{
	"upstage": "embedding-passage",
	"openai":  "text-embedding-3-small",
	"ollama":  "nomic-embed-text",
}
