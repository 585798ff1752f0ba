package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	c := NewRedisCache(client)
	prefix := "test-" + uuid.NewString() + ":"

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, prefix+uuid.NewString(), map[string]int{"i": i}, time.Minute))
	}
	require.NoError(t, c.Set(ctx, prefix+"fixed", map[string]int{"i": 9}, time.Minute))

	var got map[string]int
	hit, err := c.Get(ctx, prefix+"fixed", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 9, got["i"])

	hit, err = c.Get(ctx, prefix+"missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	n, err := c.DeletePrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
