package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), mr.Addr(), 60)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisCache_SeenAndMark(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, 603)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, 603))
	assert.True(t, mr.Exists("enrich:seen:603"))

	seen, err = cache.Seen(ctx, 603)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = cache.Seen(ctx, 604)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.MarkSeen(ctx, 27205))
	assert.Equal(t, 60*time.Second, mr.TTL("enrich:seen:27205"))

	mr.FastForward(61 * time.Second)

	seen, err := cache.Seen(ctx, 27205)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_Unavailable(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	mr.Close()

	_, err := cache.Seen(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, cache.MarkSeen(context.Background(), 1))
}

func TestNewRedisCache_ConnectError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), addr, 60)
	assert.Error(t, err)
}

func TestNoOpCache(t *testing.T) {
	cache := &NoOpCache{}
	require.NoError(t, cache.MarkSeen(context.Background(), 1))
	seen, err := cache.Seen(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, seen)
}
