package embedding

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/config"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/pkg/jina"
)

// New builds the configured encoder: provider adapter, per-call guard and
// optional query-vector cache.
func New(ctx context.Context, cfg *config.Config) (Encoder, error) {
	dims := ResolveDimensions(cfg.Embedding.Model, cfg.Embedding.Dimensions)

	var raw Encoder
	switch cfg.Embedding.Provider {
	case "gemini":
		g, err := NewGeminiEncoder(ctx, cfg.Gemini.Key, cfg.Embedding.Model, dims)
		if err != nil {
			return nil, err
		}
		raw = g
	case "jina":
		var opts []jina.Option
		if cfg.Jina.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(cfg.Jina.BaseURL))
		}
		raw = NewJinaEncoder(jina.NewClient(cfg.Jina.Key, opts...), cfg.Embedding.Model, dims)
	case "ollama":
		raw = NewOllamaEncoder(cfg.Ollama.URL, cfg.Embedding.Model, dims)
	default:
		return nil, eris.Errorf("embedding: unknown provider %q", cfg.Embedding.Provider)
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Embedding.MaxAttempts > 1 {
		retry.MaxAttempts = cfg.Embedding.MaxAttempts
	}
	guard := resilience.NewGuard("embedding:"+cfg.Embedding.Provider, cfg.Embedding.Timeout(),
		resilience.WithRetry(retry))

	enc := Guard(raw, guard)

	cache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	zap.L().Info("embedding encoder ready",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dims),
		zap.String("cache", cfg.Embedding.Cache),
	)
	return WithCache(enc, cache), nil
}

func newCache(cfg *config.Config) (Cache, error) {
	switch cfg.Embedding.Cache {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour
		return NewRedisCache(client, ttl), nil
	default:
		return nil, eris.Errorf("embedding: unknown cache %q", cfg.Embedding.Cache)
	}
}
