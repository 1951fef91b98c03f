package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// KeyValue abstracts the Redis operations the store uses to make testing easier.
type KeyValue interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisKeyValue is a concrete implementation backed by go-redis.
type RedisKeyValue struct {
	client *redis.Client
}

// NewRedisKeyValue constructs a new Redis-backed adapter.
func NewRedisKeyValue(client *redis.Client) *RedisKeyValue {
	return &RedisKeyValue{client: client}
}

// Set writes a value to Redis.
func (c *RedisKeyValue) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from Redis.
func (c *RedisKeyValue) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// RedisCredentialStore keeps the credential under a single Redis key with no expiry.
type RedisCredentialStore struct {
	retryPolicy
	kv  KeyValue
	key string
}

// NewRedisCredentialStore creates a store bound to key.
func NewRedisCredentialStore(kv KeyValue, key string, logger *zap.Logger) *RedisCredentialStore {
	if key == "" {
		key = DefaultCredentialKey
	}
	return &RedisCredentialStore{
		retryPolicy: defaultRetryPolicy(logger.Named("credential_redis")),
		kv:          kv,
		key:         key,
	}
}

// Load returns the stored value, or "" when the key is absent.
func (s *RedisCredentialStore) Load(ctx context.Context) (string, error) {
	var value string
	err := s.executeWithRetry(ctx, "repository.redis.load", func() error {
		v, err := s.kv.Get(ctx, s.key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Save overwrites the stored value.
func (s *RedisCredentialStore) Save(ctx context.Context, value string) error {
	return s.executeWithRetry(ctx, "repository.redis.save", func() error {
		return s.kv.Set(ctx, s.key, value, 0)
	})
}
