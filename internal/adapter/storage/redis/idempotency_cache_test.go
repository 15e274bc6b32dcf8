package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyCache(client), s
}

func TestIdempotencyCache_SetAndGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key := "alice:transfer:req-001"
	value := []byte(`{"success":true,"message":"transfer completed"}`)

	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, cache.Set(ctx, key, value, 24*time.Hour))

	result, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestIdempotencyCache_TTLExpiry(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "bob:cash:req-2", []byte(`{}`), time.Second))

	s.FastForward(2 * time.Second)

	result, err := cache.Get(ctx, "bob:cash:req-2")
	assert.NoError(t, err)
	assert.Nil(t, result, "expired key should return nil")
}

func TestIdempotencyCache_Reserve(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()
	key := "alice:cash:req-3"

	ok, err := cache.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first reservation should win")

	ok, err = cache.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation should be rejected")

	assert.True(t, s.Exists("idempotency:lock:"+key))

	// The result slot is separate from the lock.
	result, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyCache_Release(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := "alice:transfer:req-4"

	ok, err := cache.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.Release(ctx, key))

	ok, err = cache.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be reserved again")
}

func TestIdempotencyCache_ReserveExpires(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	ok, err := cache.Reserve(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(2 * time.Second)

	ok, err = cache.Reserve(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyCache_ClosedClient(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewIdempotencyCache(client)
	s.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)

	_, err = cache.Reserve(context.Background(), "k", time.Second)
	assert.Error(t, err)
}
