package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/photo-resolver/internal/adapter/memory"
	"github.com/user/photo-resolver/internal/entity"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func entry(ref, link string, at time.Time) *entity.CacheEntry {
	return &entity.CacheEntry{Store: "acme", Reference: ref, Link: link, Name: "Item " + ref, FetchedAt: at}
}

func TestCacheRepo_Standalone(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	repo := NewCacheRepo(client, 72*time.Hour, nil, zaptest.NewLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Put(ctx, entry("X1", "https://cdn/old.jpg", at)))
	require.NoError(t, repo.Put(ctx, entry("X1", "https://cdn/new.jpg", at.Add(time.Hour))))

	got, err = repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entry("X1", "https://cdn/new.jpg", at.Add(time.Hour)), got)

	key := repo.generateKey("acme", "X1")
	assert.Equal(t, 72*time.Hour, mr.TTL(key))

	mr.FastForward(73 * time.Hour)
	got, err = repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Nil(t, got, "retention expired")
}

func TestCacheRepo_EmptyFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	repo := NewCacheRepo(client, time.Hour, nil, zaptest.NewLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := &entity.CacheEntry{Store: "acme", Reference: "X1", Name: "Only name", FetchedAt: at}
	require.NoError(t, repo.Put(ctx, e))

	got, err := repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestCacheRepo_TieredReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	backing := memory.NewCacheRepo()
	repo := NewCacheRepo(client, time.Hour, backing, zaptest.NewLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, backing.Put(ctx, entry("X1", "https://cdn/X1.jpg", at)))

	got, err := repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entry("X1", "https://cdn/X1.jpg", at), got)
	assert.True(t, mr.Exists(repo.generateKey("acme", "X1")), "miss is backfilled")

	require.NoError(t, repo.Put(ctx, entry("X2", "https://cdn/X2.jpg", at)))
	fromBacking, err := backing.Get(ctx, "acme", "X2")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/X2.jpg", fromBacking.Link, "write-through")
}

func TestCacheRepo_TieredSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	backing := memory.NewCacheRepo()
	repo := NewCacheRepo(client, time.Hour, backing, zaptest.NewLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, backing.Put(ctx, entry("X1", "https://cdn/X1.jpg", at)))

	mr.Close()

	got, err := repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/X1.jpg", got.Link)
	assert.Error(t, repo.Ping(ctx))
}

func TestCacheRepo_MalformedHashIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	repo := NewCacheRepo(client, time.Hour, nil, zaptest.NewLogger(t))
	mr.HSet(repo.generateKey("acme", "X1"), fieldLink, "l", fieldFetchedAt, "yesterday")

	got, err := repo.Get(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
