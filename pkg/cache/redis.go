package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is the durable backend, a thin wrapper over go-redis with
// namespace prefixing. Construction pings the server with a short
// timeout so an unreachable backend is detected at startup.
type RedisStore struct {
	client     *goredis.Client
	namespace  string
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// RedisConfig holds configuration for RedisStore.
type RedisConfig struct {
	Addr        string        // redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	Namespace   string        // key prefix (default: "modelgate")
	DefaultTTL  time.Duration // default TTL (default: 1 hour)
	DialTimeout time.Duration // startup connect/ping timeout (default: 3s)
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Namespace:   "modelgate",
		DefaultTTL:  time.Hour,
		DialTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a Redis store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:     client,
		namespace:  cfg.Namespace,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

func (s *RedisStore) prefixKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Get retrieves a value. A redis.Nil reply is a miss, not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			s.misses.Add(1)
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	s.hits.Add(1)
	return val, nil
}

// Set stores a value with TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, s.prefixKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Flush removes all keys under the store's namespace.
func (s *RedisStore) Flush(ctx context.Context) error {
	pattern := s.prefixKey("*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis flush del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis flush scan: %w", err)
	}
	return nil
}

// Len counts keys under the store's namespace.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	pattern := s.prefixKey("*")
	var n int
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis len scan: %w", err)
	}
	return n, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// HitCount and MissCount expose counters for stats reporting.
func (s *RedisStore) HitCount() int64  { return s.hits.Load() }
func (s *RedisStore) MissCount() int64 { return s.misses.Load() }
