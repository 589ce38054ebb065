package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, "test:session:", ttl), mr
}

func TestRedisStore_Conformance(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		store, _ := newTestRedisStore(t, 0)
		return store
	})
}

func TestRedisStore_TTLExpiresSnapshots(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-ttl", base)))

	_, err := store.Get(context.Background(), "sess-ttl")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(context.Background(), "sess-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SaveRefreshesTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-ttl", base)))
	mr.FastForward(45 * time.Second)
	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-ttl", base)))
	mr.FastForward(45 * time.Second)

	// 90s since first save, 45s since the refresh: still present.
	_, err := store.Get(context.Background(), "sess-ttl")
	assert.NoError(t, err)
}

func TestRedisStore_CorruptValueIsDeleted(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)

	require.NoError(t, mr.Set("test:session:sess-bad", "{not json"))

	_, err := store.Get(context.Background(), "sess-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal snapshot")
	assert.False(t, mr.Exists("test:session:sess-bad"), "corrupt value should be deleted")
}

func TestRedisStore_ListSkipsCorruptValues(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-good", base)))
	require.NoError(t, mr.Set("test:session:sess-bad", "{not json"))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sess-good", infos[0].ID)
}

func TestRedisStore_ListIgnoresForeignKeys(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-mine", base)))
	require.NoError(t, mr.Set("other:key", "unrelated"))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sess-mine", infos[0].ID)
}

func TestRedisStore_PingAfterServerStops(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)

	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}

func TestRedisStore_Name(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	assert.Equal(t, TypeRedis, store.Name())
}
