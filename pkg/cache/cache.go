// Package cache provides the response cache for the gateway core: a
// durable Redis backend with an in-memory fallback that the cache
// degrades to, permanently, on the first durable-backend failure.
package cache

import (
	"context"
	"time"
)

// Backend identifies which store is serving cache operations.
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Store is the backend contract shared by the memory and Redis stores.
type Store interface {
	// Get retrieves a value. Returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL uses the
	// store's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Flush removes all entries.
	Flush(ctx context.Context) error

	// Len returns the number of live entries, where the store can know.
	Len(ctx context.Context) (int, error)

	// Ping checks backend health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Stats describes the cache's current backend and size, for the stats
// endpoint of the surrounding application.
type Stats struct {
	Backend Backend `json:"backend"`
	Enabled bool    `json:"enabled"`
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
}

// Envelope wraps a cached response with its origin metadata so the
// serving layer can mark replies as cached.
type Envelope struct {
	Timestamp int64  `json:"timestamp"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Response  []byte `json:"response"`
}
