package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/metrics"
)

const keyPrefix = "jobscout:emb:"

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded vectors.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// redisKV is the subset of *redis.Client used by RedisCache.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache implements Cache over go-redis.
type RedisCache struct {
	client redisKV
}

// NewRedisCache wraps client.
func NewRedisCache(client redisKV) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value with ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CachedEmbedder serves vectors from a Cache and falls through to the next
// Embedder on a miss. Cache failures are logged and bypassed.
type CachedEmbedder struct {
	next       Embedder
	cache      Cache
	hasher     crawler.Hasher
	dimensions int
	ttl        time.Duration
	logger     *zap.Logger
}

// NewCachedEmbedder builds a CachedEmbedder. dimensions <= 0 disables the
// size check on cached values.
func NewCachedEmbedder(next Embedder, cache Cache, hasher crawler.Hasher, dimensions int, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:       next,
		cache:      cache,
		hasher:     hasher,
		dimensions: dimensions,
		ttl:        ttl,
		logger:     logger,
	}
}

// Model returns the wrapped embedder's model.
func (e *CachedEmbedder) Model() string {
	return e.next.Model()
}

// Embed returns the cached vector for text or computes and stores it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key, err := e.key(text)
	if err != nil {
		return nil, err
	}
	if vec, ok := e.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, vec)
	return vec, nil
}

func (e *CachedEmbedder) key(text string) (string, error) {
	digest, err := e.hasher.Hash([]byte(text))
	if err != nil {
		return "", fmt.Errorf("hash embedding text: %w", err)
	}
	return keyPrefix + e.next.Model() + ":" + digest, nil
}

func (e *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, err := e.cache.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		metrics.ObserveEmbeddingCache("miss")
		return nil, false
	}
	if err != nil {
		metrics.ObserveEmbeddingCache("error")
		e.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || (e.dimensions > 0 && len(vec) != e.dimensions) {
		metrics.ObserveEmbeddingCache("invalid")
		e.logger.Warn("discarding cached embedding", zap.String("key", key), zap.Int("size", len(vec)))
		return nil, false
	}
	metrics.ObserveEmbeddingCache("hit")
	return vec, true
}

func (e *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.ttl); err != nil {
		e.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}
