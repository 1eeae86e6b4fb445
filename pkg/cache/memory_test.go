package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	err := s.Set(ctx, "key1", []byte("value1"), time.Minute)
	require.NoError(t, err)

	val, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), val)
}

func TestMemoryStore_MissReturnsNil(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	val, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour})
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "short", []byte("v"), 30*time.Millisecond))

	val, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	time.Sleep(50 * time.Millisecond)

	// Cleanup loop hasn't run; expiry must still be enforced lazily.
	val, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), time.Minute)

	require.NoError(t, s.Delete(ctx, "k"))
	val, _ := s.Get(ctx, "k")
	assert.Nil(t, val)

	// Deleting an absent key is a no-op.
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryStore_Flush(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), time.Minute)
	_ = s.Set(ctx, "b", []byte("2"), time.Minute)

	require.NoError(t, s.Flush(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_CapacityEviction(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{MaxEntries: 10, CleanupInterval: time.Hour})
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 10)
}

func TestMemoryStore_OversizedItemSkipped(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{MaxItemSize: 8, CleanupInterval: time.Hour})
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "big", []byte("this value is too large"), time.Minute))

	val, _ := s.Get(ctx, "big")
	assert.Nil(t, val)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("abc"), time.Minute)

	val, _ := s.Get(ctx, "k")
	val[0] = 'X'

	again, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(DefaultMemoryConfig())
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%16)
				_ = s.Set(ctx, key, []byte("v"), time.Minute)
				_, _ = s.Get(ctx, key)
				if i%10 == 0 {
					_ = s.Delete(ctx, key)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
