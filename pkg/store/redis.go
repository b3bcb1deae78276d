package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisOptions configures the redis backend
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps the session entry in redis so several machines can share
// one login.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection with PING
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "hwdesk:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Debug().Str("addr", opts.Addr).Str("prefix", opts.Prefix).Msg("Redis store initialized")
	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

// Get returns the value stored under key
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		observe(BackendRedis, "get", start, nil)
		return "", false, nil
	}
	observe(BackendRedis, "get", start, err)
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key without expiry; the session manager owns TTL.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := r.client.Set(ctx, r.key(key), value, 0).Err()
	observe(BackendRedis, "set", start, err)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.key(key)
	}
	err := r.client.Del(ctx, prefixed...).Err()
	observe(BackendRedis, "delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
