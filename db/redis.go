package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultKeyPrefix = "linkedin-agent:"

// RedisConfig holds the connection settings for the Redis store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore is a Store on top of Redis strings, lists and sets
type RedisStore struct {
	client *redis.Client
	prefix string
	log    *logrus.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig, log *logrus.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	log.WithFields(logrus.Fields{
		"addr":   cfg.Addr,
		"db":     cfg.DB,
		"prefix": prefix,
	}).Debug("Redis store ready")

	return &RedisStore{client: client, prefix: prefix, log: log}, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Get decodes the value at key into dest
func (r *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value at key
func (r *RedisStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes the keys
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.key(k))
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete %v: %w", keys, err)
	}
	return nil
}

// Incr increments the integer at key
func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr %s: %w", key, err)
	}
	return n, nil
}

// Push prepends value and trims the list to limit entries
func (r *RedisStore) Push(ctx context.Context, key string, value any, limit int) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode entry for %s: %w", key, err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key(key), data)
	if limit > 0 {
		pipe.LTrim(ctx, r.key(key), 0, int64(limit-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

// List returns entries newest first
func (r *RedisStore) List(ctx context.Context, key string, limit int) ([]json.RawMessage, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	values, err := r.client.LRange(ctx, r.key(key), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", key, err)
	}

	entries := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		entries = append(entries, json.RawMessage(v))
	}
	return entries, nil
}

// AddMember adds member to the set at key
func (r *RedisStore) AddMember(ctx context.Context, key, member string) error {
	if err := r.client.SAdd(ctx, r.key(key), member).Err(); err != nil {
		return fmt.Errorf("failed to add member to %s: %w", key, err)
	}
	return nil
}

// IsMember reports whether member is in the set at key
func (r *RedisStore) IsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key(key), member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check member of %s: %w", key, err)
	}
	return ok, nil
}

// CountMembers returns the size of the set at key
func (r *RedisStore) CountMembers(ctx context.Context, key string) (int, error) {
	n, err := r.client.SCard(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members of %s: %w", key, err)
	}
	return int(n), nil
}
