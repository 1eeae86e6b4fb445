package cache

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is the in-memory fallback store. Expiry uses a min-heap
// ordered by expiration time, swept by a background cleanup goroutine;
// Get also expires lazily so an entry past its TTL is never served.
type MemoryStore struct {
	mu sync.RWMutex

	entries map[string]*memoryEntry
	expiry  expiryHeap

	maxEntries  int
	defaultTTL  time.Duration
	maxItemSize int

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	value     []byte
	expiresAt int64 // unix nano
}

type expiryEntry struct {
	key       string
	expiresAt int64
}

type expiryHeap []*expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt < h[j].expiresAt }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(*expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// MemoryConfig holds configuration for MemoryStore.
type MemoryConfig struct {
	MaxEntries      int           // maximum number of items (default: 1000)
	DefaultTTL      time.Duration // default TTL (default: 1 hour)
	MaxItemSize     int           // maximum size per item in bytes (default: 1MB)
	CleanupInterval time.Duration // background sweep interval (default: 1 minute)
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries:      1000,
		DefaultTTL:      time.Hour,
		MaxItemSize:     1024 * 1024,
		CleanupInterval: time.Minute,
	}
}

// NewMemoryStore creates an in-memory store and starts its sweep loop.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.MaxItemSize <= 0 {
		cfg.MaxItemSize = 1024 * 1024
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	s := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		expiry:      make(expiryHeap, 0),
		maxEntries:  cfg.MaxEntries,
		defaultTTL:  cfg.DefaultTTL,
		maxItemSize: cfg.MaxItemSize,
		stopCleanup: make(chan struct{}),
	}
	heap.Init(&s.expiry)

	s.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// evictExpired removes all entries past their expiration. Deletion is
// idempotent: a key already removed by the lazy path is skipped via the
// stale-heap-entry check.
func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	for s.expiry.Len() > 0 {
		top := s.expiry[0]

		// Stale heap entry: key gone or was overwritten with a new TTL.
		if cur, ok := s.entries[top.key]; !ok || cur.expiresAt != top.expiresAt {
			heap.Pop(&s.expiry)
			continue
		}
		if top.expiresAt > now {
			break
		}
		heap.Pop(&s.expiry)
		delete(s.entries, top.key)
	}
}

// evictOldestLocked frees room when the store is at capacity. Expired
// entries go first; the nearest-to-expire entry is evicted otherwise.
func (s *MemoryStore) evictOldestLocked() {
	now := time.Now().UnixNano()
	for s.expiry.Len() > 0 && len(s.entries) >= s.maxEntries {
		top := s.expiry[0]
		if cur, ok := s.entries[top.key]; !ok || cur.expiresAt != top.expiresAt {
			heap.Pop(&s.expiry)
			continue
		}
		if top.expiresAt <= now || len(s.entries) >= s.maxEntries {
			heap.Pop(&s.expiry)
			delete(s.entries, top.key)
		} else {
			break
		}
	}
}

// Get retrieves a value, expiring it lazily if past its TTL.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, nil
	}

	if entry.expiresAt > 0 && entry.expiresAt <= time.Now().UnixNano() {
		s.misses.Add(1)
		s.mu.Lock()
		// Re-check under the write lock; another path may have replaced it.
		if cur, ok := s.entries[key]; ok && cur.expiresAt == entry.expiresAt {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}

	s.hits.Add(1)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value. Oversized items are skipped silently.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > s.maxItemSize {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).UnixNano()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}

	s.entries[key] = &memoryEntry{value: valueCopy, expiresAt: expiresAt}
	heap.Push(&s.expiry, &expiryEntry{key: key, expiresAt: expiresAt})
	return nil
}

// Delete removes a key. Absent keys are a no-op.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Flush removes all entries.
func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memoryEntry)
	s.expiry = make(expiryHeap, 0)
	heap.Init(&s.expiry)
	return nil
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Ping always succeeds for the memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.cleanupTicker.Stop()
		close(s.stopCleanup)
	})
	return nil
}

// HitCount and MissCount expose counters for stats reporting.
func (s *MemoryStore) HitCount() int64  { return s.hits.Load() }
func (s *MemoryStore) MissCount() int64 { return s.misses.Load() }
