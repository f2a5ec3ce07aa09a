package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Collector CollectorConfig `mapstructure:"collector"`
	Store     StoreConfig     `mapstructure:"store"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type CatalogConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	TargetCount       int           `mapstructure:"target_count"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseTimeout       time.Duration `mapstructure:"base_timeout"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	CacheSize         int           `mapstructure:"cache_size"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type CollectorConfig struct {
	Keywords      []string      `mapstructure:"keywords"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	RecordRetries int           `mapstructure:"record_retries"`
	RecordDelay   time.Duration `mapstructure:"record_delay"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
}

type StoreConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress bool   `mapstructure:"compress"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	BatchSize  int    `mapstructure:"batch_size"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://dapi.kakao.com")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("catalog.target_count", 300)
	v.SetDefault("catalog.requests_per_second", 0)

	v.SetDefault("embedding.provider", "upstage")
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.base_timeout", 10*time.Second)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.cache_size", 1000)
	v.SetDefault("embedding.requests_per_minute", 0)

	v.SetDefault("collector.chunk_size", 1000)
	v.SetDefault("collector.batch_size", 15)
	v.SetDefault("collector.max_workers", 0)
	v.SetDefault("collector.record_retries", 3)
	v.SetDefault("collector.record_delay", time.Second)
	v.SetDefault("collector.result_timeout", 30*time.Second)
	v.SetDefault("collector.flush_timeout", 2*time.Minute)

	v.SetDefault("store.dir", "book_chunk")
	v.SetDefault("store.compress", false)

	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "books")
	v.SetDefault("vector.batch_size", 256)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "bookchunk")

	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Catalog.APIKey == "" {
		warnings = append(warnings, "catalog api_key is empty (set KAKAO_API_KEY)")
	}
	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty (set UPSTAGE_API_KEY)", c.Embedding.Provider))
	}
	if c.Collector.ChunkSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("collector chunk_size %d is not positive, default will be used", c.Collector.ChunkSize))
	}
	if c.Collector.BatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("collector batch_size %d is not positive, default will be used", c.Collector.BatchSize))
	}
	if c.Collector.MaxWorkers > 8 {
		warnings = append(warnings, fmt.Sprintf("collector max_workers %d exceeds 8", c.Collector.MaxWorkers))
	}
	if c.Embedding.CacheSize < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding cache_size %d is negative", c.Embedding.CacheSize))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from an optional file and the environment.
// An empty path, or a path that does not exist, yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BOOKCHUNK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
			slog.Info("config file not found, using defaults", "path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Catalog.APIKey == "" {
		cfg.Catalog.APIKey = os.Getenv("KAKAO_API_KEY")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("UPSTAGE_API_KEY")
	}

	for _, warning := range cfg.Validate() {
		slog.Warn("config", "warning", warning)
	}

	return &cfg, nil
}
