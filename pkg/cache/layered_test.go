package cache

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rc, err := NewRedisCache(WithRedisAddr(host, port), WithRedisPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestLayeredCacheWithoutMirror(t *testing.T) {
	lc := NewLayeredCache(nil, WithLayeredMemorySize(16))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "k", "v", time.Minute))

	var out string
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "v", out)

	ok, err := lc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestLayeredPromotionKeepsMirrorTTL(t *testing.T) {
	_, rc := testRedisCache(t)
	lc := NewLayeredCache(rc)
	defer lc.Close()
	ctx := context.Background()

	// entry lives only in the mirror with 90s left
	require.NoError(t, rc.Set(ctx, "k", "v", 90*time.Second))

	var out string
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "v", out)

	lc.memCache.mutex.RLock()
	item, promoted := lc.memCache.data["k"]
	lc.memCache.mutex.RUnlock()
	require.True(t, promoted)
	assert.WithinDuration(t, time.Now().Add(90*time.Second), item.ExpireAt, 5*time.Second)
}

func TestLayeredPromotionSkipsUnboundedTTL(t *testing.T) {
	_, rc := testRedisCache(t)
	lc := NewLayeredCache(rc)
	defer lc.Close()
	ctx := context.Background()

	// a mirror entry without an expiry must not be pinned into L1
	require.NoError(t, rc.Set(ctx, "k", "v", 0))

	var out string
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "v", out)

	lc.memCache.mutex.RLock()
	_, promoted := lc.memCache.data["k"]
	lc.memCache.mutex.RUnlock()
	assert.False(t, promoted)
}

func TestLayeredCacheInvalidatePattern(t *testing.T) {
	lc := NewLayeredCache(nil)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "enrich:BTC:a", "1", time.Minute))
	require.NoError(t, lc.Set(ctx, "enrich:BTC:b", "2", time.Minute))

	removed, err := lc.InvalidatePattern(ctx, "enrich:BTC:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}
