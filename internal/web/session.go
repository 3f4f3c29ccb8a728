// Package web is the server-rendered client of the auth API: session
// storage, the route gate, the product proxy and the auth pages.
package web

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawpantry/pawpantry-go/internal/crypto"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque session ids, kept in a cookie, to API access tokens.
type SessionStore interface {
	Create(ctx context.Context, accessToken string) (string, error)
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionStore implements SessionStore backed by Redis.
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store whose entries
// expire after ttl.
func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Create stores accessToken under a new random session id.
func (s *RedisSessionStore) Create(ctx context.Context, accessToken string) (string, error) {
	id, err := crypto.RandomToken()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, sessionKey(id), accessToken, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return id, nil
}

// Get loads the access token of a session.
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	token, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	return token, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
