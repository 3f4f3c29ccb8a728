package web

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestRedisSessionStore(t *testing.T) {
	srv, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	id, err := store.Create(ctx, "access-token")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	token, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access-token", token)

	assert.True(t, srv.Exists(sessionKey(id)))
	assert.Equal(t, time.Minute, srv.TTL(sessionKey(id)))

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, store.Delete(ctx, id), "deleting a missing session is not an error")
}

func TestRedisSessionStore_DistinctIDs(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	first, err := store.Create(ctx, "token")
	require.NoError(t, err)
	second, err := store.Create(ctx, "token")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestRedisSessionStore_Expiry(t *testing.T) {
	srv, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	id, err := store.Create(ctx, "short-lived")
	require.NoError(t, err)

	srv.FastForward(time.Minute + time.Second)

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore_BackendDown(t *testing.T) {
	srv, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	srv.Close()

	_, err := store.Get(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Create(context.Background(), "token")
	assert.Error(t, err)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "session:abc", sessionKey("abc"))
}
