package cache

import (
	"context"
	"time"
)

// LayeredCache is a two-tier cache: an authoritative in-process tier (L1)
// mirrored into Redis (L2) for other instances. L1 is always consulted
// first; L2 failures degrade to a miss instead of surfacing an error.
type LayeredCache struct {
	memCache   *MemoryCache
	redisCache *RedisCache
}

// NewLayeredCache creates a layered cache with memory and an optional Redis
// mirror. A nil redisCache yields a purely in-process cache.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memCache:   NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		redisCache: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// Memory is authoritative on write; the mirror is best-effort.
	if err := lc.memCache.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if lc.redisCache != nil {
		_ = lc.redisCache.Set(ctx, key, value, ttl)
	}
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}

	if lc.redisCache == nil {
		return ErrCacheMiss
	}

	// A mirror failure is indistinguishable from a miss for callers.
	if err := lc.redisCache.Get(ctx, key, dest); err != nil {
		return ErrCacheMiss
	}

	// Promote with the mirror's remaining TTL so the L1 copy cannot outlive
	// the entry's original expiry. An unknown or unbounded TTL skips promotion.
	var raw []byte
	if err := lc.redisCache.Get(ctx, key, &raw); err == nil {
		if ttl, err := lc.redisCache.TTL(ctx, key); err == nil && ttl > 0 {
			_ = lc.memCache.Set(ctx, key, raw, ttl)
		}
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	err := lc.memCache.Delete(ctx, keys...)
	if lc.redisCache != nil {
		_ = lc.redisCache.Delete(ctx, keys...)
	}
	return err
}

// InvalidatePattern removes matches from both tiers. The count reflects the
// authoritative in-process tier plus any extra entries only the mirror held.
func (lc *LayeredCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	removed, err := lc.memCache.InvalidatePattern(ctx, pattern)
	if err != nil {
		return removed, err
	}
	if lc.redisCache != nil {
		if extra, rerr := lc.redisCache.InvalidatePattern(ctx, pattern); rerr == nil && extra > removed {
			removed = extra
		}
	}
	return removed, nil
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, err := lc.memCache.Exists(ctx, keys...); err == nil && ok {
		return true, nil
	}
	if lc.redisCache != nil {
		return lc.redisCache.Exists(ctx, keys...)
	}
	return false, nil
}

// Close closes both cache tiers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	if lc.redisCache != nil {
		return lc.redisCache.Close()
	}
	return nil
}
