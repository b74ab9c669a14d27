package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/florianilch/tokengate/internal/token"
)

// RedisStore persists the token pair in Redis so horizontally scaled server
// processes share one session. The key is not given a TTL: the refresh token
// outlives the access token by an amount only the issuing server knows, so
// expiry is enforced by the session layer, not by the store.
type RedisStore struct {
	client *redis.Client
	key    string
}

// Compile-time check to ensure RedisStore implements TokenStore
var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using the given client and key.
func NewRedisStore(client *redis.Client, key string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	return &RedisStore{
		client: client,
		key:    key,
	}, nil
}

// Read returns the token pair stored under the configured key.
func (r *RedisStore) Read(ctx context.Context) (*token.StoredToken, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading token from redis: %w", err)
	}

	return decode(data)
}

// Write replaces the token pair under the configured key. SET is atomic, so
// concurrent readers observe either the old pair or the new one.
func (r *RedisStore) Write(ctx context.Context, tok *token.StoredToken) error {
	data, err := encode(tok)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing token to redis: %w", err)
	}
	return nil
}

// Clear removes the token pair. A missing key is not an error.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clearing token from redis: %w", err)
	}
	return nil
}
