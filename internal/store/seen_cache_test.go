package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
	"jobmate/campaign-service/internal/store"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSeenCache_WritesThrough(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	backing := store.NewMemory()
	cache := store.NewSeenCache(backing, client, time.Hour, logger.NewNop())
	key := model.PostingKey{Source: "adzuna", SourceID: "7"}

	require.NoError(t, cache.MarkSeen(ctx, "c1", key))

	assert.True(t, mr.Exists("seen:c1:adzuna:7"))
	assert.Equal(t, time.Hour, mr.TTL("seen:c1:adzuna:7"))
	seen, err := backing.Seen(ctx, "c1", key)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSeenCache_RedisHitSkipsBackingStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	cache := store.NewSeenCache(store.NewMemory(), client, time.Hour, logger.NewNop())
	require.NoError(t, mr.Set("seen:c1:adzuna:1", "1"))

	seen, err := cache.Seen(ctx, "c1", model.PostingKey{Source: "adzuna", SourceID: "1"})
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSeenCache_MissRefillsFromBackingStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	backing := store.NewMemory()
	key := model.PostingKey{Source: "adzuna", SourceID: "2"}
	require.NoError(t, backing.MarkSeen(ctx, "c1", key))
	cache := store.NewSeenCache(backing, client, time.Hour, logger.NewNop())

	seen, err := cache.Seen(ctx, "c1", key)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("seen:c1:adzuna:2"))
}

func TestSeenCache_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	backing := store.NewMemory()
	cache := store.NewSeenCache(backing, client, time.Hour, logger.NewNop())
	key := model.PostingKey{Source: "adzuna", SourceID: "3"}
	mr.Close()

	seen, err := cache.Seen(ctx, "c1", key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, "c1", key))
	seen, err = backing.Seen(ctx, "c1", key)
	require.NoError(t, err)
	assert.True(t, seen)
}
