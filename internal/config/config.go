package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" mapstructure:"artifacts"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the evidence store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EmbeddingConfig configures the query encoder.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	Model         string `yaml:"model" mapstructure:"model"`
	Dimensions    int    `yaml:"dimensions" mapstructure:"dimensions"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	Cache         string `yaml:"cache" mapstructure:"cache"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// Timeout returns the per-call embedding timeout.
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// GenerationConfig configures the text generation backend.
type GenerationConfig struct {
	Model             string  `yaml:"model" mapstructure:"model"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	CircuitThreshold  int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
}

// Timeout returns the per-call generation timeout.
func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetrievalConfig holds the global retrieval defaults and the optional
// per-section overrides file.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k" mapstructure:"top_k"`
	Threshold     float64 `yaml:"threshold" mapstructure:"threshold"`
	OverridesFile string  `yaml:"overrides_file" mapstructure:"overrides_file"`
}

// CatalogConfig selects where label section definitions come from.
type CatalogConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenAIConfig holds settings for OpenAI-compatible chat endpoints.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OllamaConfig holds the local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// NotionConfig holds Notion API credentials and the section database ID.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	SectionDB string `yaml:"section_db" mapstructure:"section_db"`
	// RateLimit is requests per second; 0 disables throttling.
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RedisConfig configures the optional query-vector cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// ArtifactsConfig configures where label artifacts are written.
type ArtifactsConfig struct {
	Sink   string `yaml:"sink" mapstructure:"sink"`
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Region string `yaml:"region" mapstructure:"region"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Generation map[string]ModelPricing `yaml:"generation" mapstructure:"generation"`
	Embedding  map[string]float64      `yaml:"embedding" mapstructure:"embedding"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// BatchConfig configures multi-product batch runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run-history alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleRunMinutes      int     `yaml:"stale_run_minutes" mapstructure:"stale_run_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.aalabel")

	v.SetEnvPrefix("AALABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "aalabel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.timeout_secs", 30)
	v.SetDefault("embedding.max_attempts", 1)
	v.SetDefault("embedding.cache", "memory")
	v.SetDefault("embedding.cache_ttl_hours", 24*7)
	v.SetDefault("generation.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("generation.temperature", 0.1)
	v.SetDefault("generation.max_tokens", 2000)
	v.SetDefault("generation.timeout_secs", 120)
	v.SetDefault("generation.requests_per_minute", 0)
	v.SetDefault("generation.max_attempts", 1)
	v.SetDefault("generation.circuit_threshold", 0)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.threshold", 0.5)
	v.SetDefault("catalog.source", "store")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("notion.retries", 3)
	v.SetDefault("notion.timeout_secs", 30)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("artifacts.sink", "local")
	v.SetDefault("artifacts.dir", "out")
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.stale_run_minutes", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given command mode are set.
// Modes: "harmonize", "batch", "retrieve", "serve", "load".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "harmonize", "retrieve", "serve", "load", "batch":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		need(c.Store.DatabaseURL != "", "store.database_url")
	case "sqlite":
		need(c.Store.SQLitePath != "", "store.sqlite_path")
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if mode == "load" {
		return missingErr(missing)
	}

	need(c.Embedding.Model != "", "embedding.model")
	switch c.Embedding.Provider {
	case "gemini":
		need(c.Gemini.Key != "", "gemini.key")
	case "jina":
		need(c.Jina.Key != "", "jina.key")
	case "ollama":
		need(c.Ollama.URL != "", "ollama.url")
	default:
		return eris.Errorf("config: unknown embedding.provider %q", c.Embedding.Provider)
	}

	if c.Retrieval.TopK < 1 {
		return eris.Errorf("config: retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return eris.Errorf("config: retrieval.threshold must be in [0,1], got %v", c.Retrieval.Threshold)
	}

	if mode == "retrieve" {
		return missingErr(missing)
	}

	need(c.Generation.Model != "", "generation.model")
	if c.Generation.MaxTokens < 1 {
		return eris.Errorf("config: generation.max_tokens must be >= 1, got %d", c.Generation.MaxTokens)
	}
	switch c.Catalog.Source {
	case "store":
	case "file":
		need(c.Catalog.Path != "", "catalog.path")
	case "notion":
		need(c.Notion.Token != "", "notion.token")
		need(c.Notion.SectionDB != "", "notion.section_db")
	default:
		return eris.Errorf("config: unknown catalog.source %q", c.Catalog.Source)
	}
	if c.Artifacts.Sink == "s3" {
		need(c.Artifacts.Bucket != "", "artifacts.bucket")
	}
	if mode == "batch" && (c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50) {
		return eris.Errorf("config: batch.concurrency must be between 1 and 50, got %d", c.Batch.Concurrency)
	}
	if mode == "serve" && c.Server.Port <= 0 {
		return eris.Errorf("config: server.port must be > 0, got %d", c.Server.Port)
	}

	return missingErr(missing)
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
