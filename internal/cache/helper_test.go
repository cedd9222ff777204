package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client)
}

func TestStore_AsideCachesOnMiss(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"a", "b"}
			return nil
		}
	}

	var first []string
	require.NoError(t, store.Aside(ctx, "k", &first, time.Minute, fetch(&first)))
	assert.Equal(t, []string{"a", "b"}, first)
	assert.True(t, mr.Exists("k"))

	var second []string
	require.NoError(t, store.Aside(ctx, "k", &second, time.Minute, fetch(&second)))
	assert.Equal(t, []string{"a", "b"}, second)
	assert.Equal(t, 1, calls)

	store.Invalidate(ctx, "k")
	assert.False(t, mr.Exists("k"))
}

func TestStore_AsidePropagatesFetchError(t *testing.T) {
	_, store := newTestStore(t)
	boom := errors.New("boom")

	var dest []string
	err := store.Aside(context.Background(), "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStore_NilClientPassesThrough(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	found, err := store.GetJSON(ctx, "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.SetJSON(ctx, "k", 1, time.Minute))
	require.NoError(t, store.RevokeToken(ctx, "jti", time.Minute))
	assert.False(t, store.IsTokenRevoked(ctx, "jti"))
	require.NoError(t, store.Ping(ctx))

	called := false
	var dest int
	require.NoError(t, store.Aside(ctx, "k", &dest, time.Minute, func() error {
		called = true
		dest = 7
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, 7, dest)
}

func TestStore_RevokeToken(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RevokeToken(ctx, "abc", time.Hour))
	assert.True(t, store.IsTokenRevoked(ctx, "abc"))
	assert.False(t, store.IsTokenRevoked(ctx, "other"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, store.IsTokenRevoked(ctx, "abc"))
}
