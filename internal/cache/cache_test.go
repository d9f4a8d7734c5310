package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-pricing/internal/cache"
)

type payload struct {
	Total string `json:"total"`
}

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.New(client, "quote:", time.Minute)
	ctx := context.Background()

	var got payload
	found, err := c.GetJSON(ctx, "abc", &got)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.SetJSON(ctx, "abc", payload{Total: "600.00"}))
	require.True(t, mr.Exists("quote:abc"))

	found, err = c.GetJSON(ctx, "abc", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "600.00", got.Total)

	mr.FastForward(2 * time.Minute)
	found, err = c.GetJSON(ctx, "abc", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestNilCacheIsEmpty(t *testing.T) {
	var c *cache.Cache
	found, err := c.GetJSON(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, c.SetJSON(context.Background(), "k", payload{}))
	require.False(t, cache.New(nil, "", time.Minute).Enabled())
}

func TestHashKeyStable(t *testing.T) {
	a, err := cache.HashKey(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := cache.HashKey(map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}
