package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/codeassist/modelgate/internal/metrics"
)

// Resilient is the gateway's response cache: a durable Redis backend
// with an in-memory fallback. On the first error from the durable
// backend the cache flips to memory for the remainder of the process;
// there is no reconnection attempt. Cache failures are never surfaced
// to callers; a failed read is a miss and a failed durable write lands
// in memory.
type Resilient struct {
	durable *RedisStore
	memory  *MemoryStore

	useDurable atomic.Bool
	enabled    bool
	defaultTTL time.Duration
	logger     *slog.Logger
}

// Config holds configuration for the resilient cache.
type Config struct {
	// Redis configures the durable backend. A nil value (or empty Addr)
	// skips straight to memory-only mode.
	Redis *RedisConfig

	// Memory configures the fallback store.
	Memory MemoryConfig

	// DefaultTTL applies when Set is called with a zero TTL
	// (default: 1 hour).
	DefaultTTL time.Duration

	// Disabled turns the cache off entirely; every Get is a miss and
	// every Set a no-op. The zero Config is enabled.
	Disabled bool

	Logger *slog.Logger
}

// New constructs the resilient cache. An unreachable durable backend is
// not an error: the cache starts memory-only and logs the degradation.
func New(cfg Config) *Resilient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	c := &Resilient{
		memory:     NewMemoryStore(cfg.Memory),
		enabled:    !cfg.Disabled,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}

	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		logger.Info("cache using memory backend, redis not configured")
		return c
	}

	durable, err := NewRedisStore(*cfg.Redis)
	if err != nil {
		logger.Warn("redis connection failed, using memory cache", "error", err)
		metrics.CacheDegraded.Inc()
		return c
	}

	c.durable = durable
	c.useDurable.Store(true)
	logger.Info("cache using redis backend", "addr", cfg.Redis.Addr)
	return c
}

// degrade flips the cache to the memory backend for the rest of the
// process lifetime.
func (c *Resilient) degrade(op string, err error) {
	if c.useDurable.CompareAndSwap(true, false) {
		c.logger.Warn("redis backend failed, degrading to memory cache",
			"op", op,
			"error", err,
		)
		metrics.CacheDegraded.Inc()
	}
}

// Get returns the cached value for key, or nil on a miss. Backend
// errors degrade the cache and read through to memory.
func (c *Resilient) Get(ctx context.Context, key string) []byte {
	if !c.enabled {
		return nil
	}

	if c.useDurable.Load() {
		val, err := c.durable.Get(ctx, key)
		if err == nil {
			c.recordOp(BackendRedis, "get", val != nil)
			return val
		}
		c.degrade("get", err)
	}

	val, _ := c.memory.Get(ctx, key)
	c.recordOp(BackendMemory, "get", val != nil)
	return val
}

// Set stores value under key. Reports whether the value was stored in
// some backend; a durable failure degrades to a memory write.
func (c *Resilient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if c.useDurable.Load() {
		err := c.durable.Set(ctx, key, value, ttl)
		if err == nil {
			c.recordOp(BackendRedis, "set", true)
			return true
		}
		c.degrade("set", err)
	}

	if err := c.memory.Set(ctx, key, value, ttl); err != nil {
		c.recordOp(BackendMemory, "set", false)
		return false
	}
	c.recordOp(BackendMemory, "set", true)
	return true
}

// Delete removes key from the active backend.
func (c *Resilient) Delete(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}

	if c.useDurable.Load() {
		err := c.durable.Delete(ctx, key)
		if err == nil {
			return true
		}
		c.degrade("delete", err)
	}

	_ = c.memory.Delete(ctx, key)
	return true
}

// Clear removes every cached entry from the active backend.
func (c *Resilient) Clear(ctx context.Context) bool {
	if !c.enabled {
		return false
	}

	if c.useDurable.Load() {
		err := c.durable.Flush(ctx)
		if err == nil {
			c.logger.Info("cache cleared", "backend", BackendRedis)
			return true
		}
		c.degrade("clear", err)
	}

	_ = c.memory.Flush(ctx)
	c.logger.Info("cache cleared", "backend", BackendMemory)
	return true
}

// Stats reports the active backend, whether the cache is enabled, and
// the entry count. A durable failure while counting degrades like any
// other operation.
func (c *Resilient) Stats(ctx context.Context) Stats {
	st := Stats{
		Backend: BackendMemory,
		Enabled: c.enabled,
	}
	if !c.enabled {
		return st
	}

	if c.useDurable.Load() {
		n, err := c.durable.Len(ctx)
		if err == nil {
			st.Backend = BackendRedis
			st.Size = n
			st.Hits = c.durable.HitCount()
			st.Misses = c.durable.MissCount()
			return st
		}
		c.degrade("stats", err)
	}

	n, _ := c.memory.Len(ctx)
	st.Size = n
	st.Hits = c.memory.HitCount()
	st.Misses = c.memory.MissCount()
	return st
}

// Backend reports which store is currently serving operations.
func (c *Resilient) Backend() Backend {
	if c.useDurable.Load() {
		return BackendRedis
	}
	return BackendMemory
}

// Close releases both backends.
func (c *Resilient) Close() error {
	_ = c.memory.Close()
	if c.durable != nil {
		return c.durable.Close()
	}
	return nil
}

func (c *Resilient) recordOp(backend Backend, op string, ok bool) {
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	if op != "get" {
		outcome = "ok"
		if !ok {
			outcome = "error"
		}
	}
	metrics.CacheOps.WithLabelValues(string(backend), op, outcome).Inc()
}
