package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Catalog:   CatalogConfig{APIKey: "k"},
		Embedding: EmbeddingConfig{Provider: "upstage", APIKey: "u", CacheSize: 1000},
		Collector: CollectorConfig{ChunkSize: 1000, BatchSize: 15},
		Tracing:   TracingConfig{SampleRate: 1},
	}
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidate_Valid(t *testing.T) {
	if warnings := validConfig().Validate(); len(warnings) != 0 {
		t.Errorf("valid config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.APIKey = ""
	cfg.Embedding.APIKey = ""
	warnings := cfg.Validate()
	if !hasWarning(warnings, "KAKAO_API_KEY") {
		t.Error("expected warning about missing catalog api_key")
	}
	if !hasWarning(warnings, "UPSTAGE_API_KEY") {
		t.Error("expected warning about missing embedding api_key")
	}
}

func TestValidate_KeylessProviders(t *testing.T) {
	for _, p := range []string{"none", "ollama"} {
		cfg := validConfig()
		cfg.Embedding.Provider = p
		cfg.Embedding.APIKey = ""
		if hasWarning(cfg.Validate(), "embedding provider") {
			t.Errorf("provider %q should not warn about missing api_key", p)
		}
	}
}

func TestValidate_Sizes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk_size", func(c *Config) { c.Collector.ChunkSize = 0 }, "chunk_size"},
		{"batch_size", func(c *Config) { c.Collector.BatchSize = -1 }, "batch_size"},
		{"max_workers", func(c *Config) { c.Collector.MaxWorkers = 16 }, "max_workers"},
		{"cache_size", func(c *Config) { c.Embedding.CacheSize = -5 }, "cache_size"},
		{"sample_rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if !hasWarning(cfg.Validate(), tt.want) {
				t.Errorf("expected warning containing %q", tt.want)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.ChunkSize != 1000 || cfg.Collector.BatchSize != 15 {
		t.Errorf("collector defaults = %+v", cfg.Collector)
	}
	if cfg.Collector.ResultTimeout != 30*time.Second || cfg.Collector.FlushTimeout != 2*time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.Collector.ResultTimeout, cfg.Collector.FlushTimeout)
	}
	if cfg.Embedding.MaxRetries != 3 || cfg.Embedding.BaseTimeout != 10*time.Second || cfg.Embedding.CacheSize != 1000 {
		t.Errorf("embedding defaults = %+v", cfg.Embedding)
	}
	if cfg.Catalog.TargetCount != 300 || cfg.Store.Dir != "book_chunk" {
		t.Errorf("catalog/store defaults = %+v %+v", cfg.Catalog, cfg.Store)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.ChunkSize != 1000 {
		t.Errorf("chunk_size = %d, want default", cfg.Collector.ChunkSize)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookchunk.yaml")
	yaml := `
collector:
  chunk_size: 50
  keywords: [혁신, 전략]
store:
  dir: /tmp/chunks
  compress: true
embedding:
  base_timeout: 5s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOKCHUNK_COLLECTOR_BATCH_SIZE", "7")
	t.Setenv("KAKAO_API_KEY", "kakao-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.ChunkSize != 50 || cfg.Collector.BatchSize != 7 {
		t.Errorf("collector = %+v", cfg.Collector)
	}
	if len(cfg.Collector.Keywords) != 2 || cfg.Collector.Keywords[0] != "혁신" {
		t.Errorf("keywords = %v", cfg.Collector.Keywords)
	}
	if !cfg.Store.Compress || cfg.Store.Dir != "/tmp/chunks" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Embedding.BaseTimeout != 5*time.Second {
		t.Errorf("base_timeout = %v", cfg.Embedding.BaseTimeout)
	}
	if cfg.Catalog.APIKey != "kakao-secret" {
		t.Errorf("catalog api_key = %q, want value from KAKAO_API_KEY", cfg.Catalog.APIKey)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("collector: [unterminated"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}
