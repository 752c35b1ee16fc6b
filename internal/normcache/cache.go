// Package normcache memoises Normalizer calls by raw input text, the
// way the teacher layers an in-process LRU in front of a slower
// backing store (app/services/mongo_cache_service.go) and optionally
// fronts that with Redis across processes
// (app/services/hybrid_cache_service.go). The normaliser is CPU-bound
// and deterministic for a fixed library version (spec §6), so results
// are safe to cache indefinitely within a run.
package normcache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/normalize"
)

// cacheKey pairs the raw input with a kind tag ("expand" or "hashes")
// so Expand and NearDupeHashes don't collide in the same cache.
type cacheKey struct {
	kind string
	text string
}

// Cache wraps a normalize.Normalizer with an L1 LRU (always present)
// and an optional L2 Redis cache shared across worker processes,
// mirroring HybridCacheService's L1-then-L2-then-async-backfill Get.
type Cache struct {
	inner  normalize.Normalizer
	l1     *lru.Cache[cacheKey, []string]
	redis  *redis.Client
	logger *zap.Logger
}

// New wraps inner with an LRU of the given size. redisClient may be
// nil, in which case only the in-process L1 is used.
func New(inner normalize.Normalizer, l1Size int, redisClient *redis.Client, logger *zap.Logger) (*Cache, error) {
	l1, err := lru.New[cacheKey, []string](l1Size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, l1: l1, redis: redisClient, logger: logger}, nil
}

// Expand is memoised by the raw input string.
func (c *Cache) Expand(s string) []string {
	key := cacheKey{kind: "expand", text: s}
	if v, ok := c.l1.Get(key); ok {
		return v
	}

	if c.redis != nil {
		if v, ok := c.getRedis(key); ok {
			c.l1.Add(key, v)
			return v
		}
	}

	v := c.inner.Expand(s)
	c.l1.Add(key, v)
	c.setRedisAsync(key, v)
	return v
}

// NearDupeHashes is memoised by a stable join of label:value pairs.
func (c *Cache) NearDupeHashes(fields []normalize.Field) []string {
	key := cacheKey{kind: "hashes", text: fieldsKey(fields)}
	if v, ok := c.l1.Get(key); ok {
		return v
	}

	if c.redis != nil {
		if v, ok := c.getRedis(key); ok {
			c.l1.Add(key, v)
			return v
		}
	}

	v := c.inner.NearDupeHashes(fields)
	c.l1.Add(key, v)
	c.setRedisAsync(key, v)
	return v
}

func fieldsKey(fields []normalize.Field) string {
	b, _ := json.Marshal(fields)
	return string(b)
}

func (c *Cache) getRedis(key cacheKey) ([]string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := c.redis.Get(ctx, redisKey(key)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("normcache: redis get failed, falling back to inner normaliser", zap.Error(err))
		}
		return nil, false
	}

	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return v, true
}

// setRedisAsync mirrors HybridCacheService.Set's fire-and-forget
// writes: a cache miss must never slow down the hot path.
func (c *Cache) setRedisAsync(key cacheKey, v []string) {
	if c.redis == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, redisKey(key), b, 24*time.Hour).Err(); err != nil {
			c.logger.Warn("normcache: redis set failed", zap.Error(err))
		}
	}()
}

func redisKey(key cacheKey) string {
	return "normcache:" + key.kind + ":" + key.text
}
