package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"checkout-service/cache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "order:1:detail")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "order:1:detail", []byte(`{"id":1}`), 0))
	got, err := c.Get(ctx, "order:1:detail")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(got))
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestMemoryCache_InvalidatePatternIsSubstringMatch(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute)
	ctx := context.Background()

	for _, k := range []string{
		"orders:user:1:page:1:limit:20",
		"orders:user:2:page:1:limit:20",
		"order:7:detail",
		"order:70:detail",
		"cart:1",
	} {
		require.NoError(t, c.Set(ctx, k, []byte("x"), 0))
	}

	require.NoError(t, c.InvalidatePattern(ctx, cache.OrdersPrefix))
	require.NoError(t, c.InvalidatePattern(ctx, cache.OrderPrefix(7)))

	_, err := c.Get(ctx, "orders:user:1:page:1:limit:20")
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = c.Get(ctx, "order:7:detail")
	assert.ErrorIs(t, err, cache.ErrMiss)

	_, err = c.Get(ctx, "order:70:detail")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "cart:1")
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestOrderPrefix(t *testing.T) {
	assert.Equal(t, "order:42:", cache.OrderPrefix(42))
}

// Runs only against a live server: REDIS_TEST_URL=redis://localhost:6379/15
func TestRedisCache_Integration(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	c := cache.NewRedisCache(client, "checkout-test:", time.Minute)

	require.NoError(t, c.Set(ctx, "order:9:detail", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "orders:user:3:page:1:limit:20", []byte("b"), 0))

	require.NoError(t, c.InvalidatePattern(ctx, "order:9:"))

	_, err = c.Get(ctx, "order:9:detail")
	assert.ErrorIs(t, err, cache.ErrMiss)
	got, err := c.Get(ctx, "orders:user:3:page:1:limit:20")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	require.NoError(t, c.InvalidatePattern(ctx, cache.OrdersPrefix))
}
