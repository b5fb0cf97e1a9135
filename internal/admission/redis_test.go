package admission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisStore(rdb, testAdmissionCfg())
	require.NoError(t, err)
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t)
	runStoreSuite(t, store)
}

func TestRedisStore_BucketKeyExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)

	t0 := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	res, err := store.TryAdmit(context.Background(), "alice", ClassGeneral, t0)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	require.Len(t, mr.Keys(), 1)
	mr.FastForward(3 * time.Minute)
	assert.Empty(t, mr.Keys(), "stale buckets are reclaimed by TTL")
}

func TestRedisStore_StoreErrorSurfaces(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, err := store.TryAdmit(context.Background(), "alice", ClassGeneral, time.Now())
	require.Error(t, err)
}
