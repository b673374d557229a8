package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(10))
	defer mc.Close()
	ctx := context.Background()

	type payload struct {
		Asset string  `json:"asset"`
		Score float64 `json:"score"`
	}

	require.NoError(t, mc.Set(ctx, "enrich:BTC:abc", payload{Asset: "BTC", Score: 0.82}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "enrich:BTC:abc", &got))
	assert.Equal(t, "BTC", got.Asset)
	assert.InDelta(t, 0.82, got.Score, 1e-9)
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	var out string
	err := mc.Get(context.Background(), "missing", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", "v", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	var out string
	err := mc.Get(ctx, "short", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(2 * time.Millisecond)

	// Touch "a" so "b" becomes the least recently used entry.
	var out string
	require.NoError(t, mc.Get(ctx, "a", &out))
	time.Sleep(2 * time.Millisecond)

	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	require.NoError(t, mc.Get(ctx, "a", &out))
	require.NoError(t, mc.Get(ctx, "c", &out))
	assert.ErrorIs(t, mc.Get(ctx, "b", &out), ErrCacheMiss)
}

func TestMemoryCacheInvalidatePattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "enrich:BTC:k1", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "enrich:BTC:k2", "2", time.Minute))
	require.NoError(t, mc.Set(ctx, "enrich:ETH:k1", "3", time.Minute))

	removed, err := mc.InvalidatePattern(ctx, "enrich:BTC:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "enrich:BTC:k1", &out), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "enrich:ETH:k1", &out))
}
