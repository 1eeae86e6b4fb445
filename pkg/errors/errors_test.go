package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := NewRateLimited("groq", "llama-3.3-70b-versatile", "quota exhausted")
	assert.Contains(t, err.Error(), "rate_limited")
	assert.Contains(t, err.Error(), "groq/llama-3.3-70b-versatile")
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestRetryable(t *testing.T) {
	assert.True(t, NewRateLimited("p", "m", "x").Retryable())
	assert.True(t, NewTransient("p", "m", "x").Retryable())
	assert.False(t, NewFatal("p", "m", "x").Retryable())
	assert.False(t, NewServiceUnavailable("x").Retryable())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(NewTransient("p", "m", "boom")))
	assert.Equal(t, KindFatal, KindOf(errors.New("plain")))

	// Wrapped errors still classify.
	wrapped := fmt.Errorf("call failed: %w", NewRateLimited("p", "m", "429"))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))
}

func TestServiceUnavailableAggregatesCauses(t *testing.T) {
	a := NewRateLimited("groq", "m1", "throttled")
	b := NewTransient("cerebras", "m2", "connection reset")
	agg := NewServiceUnavailable("all providers failed", a, b)

	require.Len(t, agg.Causes, 2)
	assert.Contains(t, agg.Error(), "groq")
	assert.Contains(t, agg.Error(), "cerebras")
	assert.True(t, errors.Is(agg, a))
	assert.True(t, errors.Is(agg, b))
}

func TestIsMatchesOnKind(t *testing.T) {
	err := NewTemporarilyBlocked("too many violations", 5*time.Minute)
	assert.True(t, errors.Is(err, &Error{Kind: KindTemporarilyBlocked}))
	assert.False(t, errors.Is(err, &Error{Kind: KindAdmissionRejected}))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(NewAdmissionRejected("rate limit exceeded", 0)))
	assert.True(t, IsRejection(NewTemporarilyBlocked("blocked", time.Minute)))
	assert.False(t, IsRejection(NewServiceUnavailable("down")))
	assert.False(t, IsRejection(errors.New("plain")))
}
