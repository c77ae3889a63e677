package authclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "authclient:session:"

// RedisSessionStore keeps sessions in Redis, letting several client processes share one session.
type RedisSessionStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisSessionStoreOption customizes a RedisSessionStore.
type RedisSessionStoreOption func(*RedisSessionStore)

// WithRedisKeyPrefix overrides the key namespace.
func WithRedisKeyPrefix(prefix string) RedisSessionStoreOption {
	return func(store *RedisSessionStore) {
		store.keyPrefix = prefix
	}
}

// WithRedisTTL expires stored sessions after ttl. Zero keeps them until removed.
func WithRedisTTL(ttl time.Duration) RedisSessionStoreOption {
	return func(store *RedisSessionStore) {
		store.ttl = ttl
	}
}

// NewRedisSessionStore wraps an existing client.
func NewRedisSessionStore(client redis.UniversalClient, options ...RedisSessionStoreOption) *RedisSessionStore {
	store := &RedisSessionStore{client: client, keyPrefix: defaultRedisKeyPrefix}
	for _, option := range options {
		option(store)
	}
	return store
}

// Get returns the blob under the prefixed key or ErrSessionNotFound.
func (store *RedisSessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := store.client.Get(ctx, store.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("authclient.redis_store.get: %w", err)
	}
	return raw, nil
}

// Set writes the blob with the configured expiry.
func (store *RedisSessionStore) Set(ctx context.Context, key string, value []byte) error {
	if err := store.client.Set(ctx, store.keyPrefix+key, value, store.ttl).Err(); err != nil {
		return fmt.Errorf("authclient.redis_store.set: %w", err)
	}
	return nil
}

// Remove deletes the prefixed key.
func (store *RedisSessionStore) Remove(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, store.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("authclient.redis_store.remove: %w", err)
	}
	return nil
}
