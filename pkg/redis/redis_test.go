package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")

	// When Redis is disabled, all requests should be allowed
	cfg := APIRateLimit("127.0.0.1")
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, cfg.Limit, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), cfg))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	require.NoError(t, cache.SetBytes(ctx, "k", []byte("v"), time.Minute))
	_, found, err := cache.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	var out map[string]int
	found, err = cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "snapshot:latest:ES:1m", SnapshotKey("ES:1m"))
	assert.Equal(t, "api:10.0.0.1", APIRateLimit("10.0.0.1").Key)
}

func TestCache_RoundTrip(t *testing.T) {
	if testing.Short() || os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}
	t.Setenv("REDIS_ENABLED", "true")
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	client, err := New(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "swingdag-test")
	require.NoError(t, cache.Set(ctx, "rt", map[string]int{"legs": 3}, time.Minute))

	var out map[string]int
	found, err := cache.Get(ctx, "rt", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, out["legs"])
	require.NoError(t, cache.Delete(ctx, "rt"))
}
