package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores query vectors keyed by model and text digest.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CacheKey returns the cache key for text embedded under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "aalabel:emb:" + model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache stores vectors as JSON arrays in Redis with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "embedding: redis get")
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, eris.Wrap(err, "embedding: decode cached vector")
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return eris.Wrap(err, "embedding: encode vector")
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "embedding: redis set")
	}
	return nil
}

// cached consults a Cache before calling the wrapped encoder. Cache faults
// are logged and bypassed.
type cached struct {
	inner Encoder
	cache Cache
}

// WithCache wraps e so that identical text under the same model is encoded
// once.
func WithCache(e Encoder, c Cache) Encoder {
	if c == nil {
		return e
	}
	return &cached{inner: e, cache: c}
}

func (c *cached) Model() string   { return c.inner.Model() }
func (c *cached) Dimensions() int { return c.inner.Dimensions() }

func (c *cached) Encode(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.inner.Model(), text)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("embedding: cache get failed", zap.Error(err))
	} else if ok {
		return vec, nil
	}

	vec, err = c.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		zap.L().Warn("embedding: cache set failed", zap.Error(err))
	}
	return vec, nil
}
