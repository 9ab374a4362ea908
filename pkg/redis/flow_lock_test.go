package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowLockStore_AcquireRelease(t *testing.T) {
	srv := startMiniRedis(t)
	c := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = c.Close() })

	store := NewFlowLockStoreWithClient(c)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "flow-1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "flow-1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	require.NoError(t, store.Release(ctx, "flow-1", "owner-b"))
	assert.True(t, srv.Exists("lock:flow:flow-1"), "non-owner release must not drop the lock")

	require.NoError(t, store.Release(ctx, "flow-1", "owner-a"))
	assert.False(t, srv.Exists("lock:flow:flow-1"))

	ok, err = store.Acquire(ctx, "flow-1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlowLockStore_Expires(t *testing.T) {
	srv := startMiniRedis(t)
	c := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	store := NewFlowLockStoreWithClient(c)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "flow-2", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	ok, err = store.Acquire(ctx, "flow-2", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlowLockStore_UsesSharedClient(t *testing.T) {
	srv := startMiniRedis(t)
	orig := client
	t.Cleanup(func() { client = orig })
	SetClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))

	store := NewFlowLockStore()
	ok, err := store.Acquire(context.Background(), "flow-3", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, srv.Exists("lock:flow:flow-3"))
}

func TestFlowLockStore_ExtendKeepsOwnerLock(t *testing.T) {
	srv := startMiniRedis(t)
	c := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	store := NewFlowLockStoreWithClient(c)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "flow-4", "owner-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Extend(ctx, "flow-4", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner may extend")

	ok, err = store.Extend(ctx, "flow-4", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(30 * time.Second)
	ok, err = store.Acquire(ctx, "flow-4", "owner-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "extended lock must outlive its original ttl")

	srv.FastForward(time.Minute)
	ok, err = store.Extend(ctx, "flow-4", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "an expired lock cannot be revived")
}
