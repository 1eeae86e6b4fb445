package openaicompat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/codeassist/modelgate/pkg/errors"
	"github.com/codeassist/modelgate/pkg/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Name:    "groq",
		BaseURL: srv.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)
	return c
}

func completionJSON(content, model, reason string, tokens int) string {
	return fmt.Sprintf(`{
		"model": %q,
		"choices": [{"message": {"content": %q}, "finish_reason": %q}],
		"usage": {"total_tokens": %d}
	}`, model, content, reason, tokens)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x"})
	assert.ErrorContains(t, err, "name is required")

	_, err = New(Config{Name: "groq"})
	assert.ErrorContains(t, err, "base URL is required")
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))
		io.WriteString(w, completionJSON("hello", "llama-3.3-70b", "stop", 17))
	})

	resp, err := c.Generate(context.Background(), provider.GenerateRequest{
		Model: "llama-3.3-70b",
		Messages: []provider.Message{
			{Role: "system", Content: "you review code"},
			{Role: "user", Content: "review this"},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "llama-3.3-70b", gotReq.Model)
	assert.Len(t, gotReq.Messages, 2)
	assert.Equal(t, 0.2, gotReq.Temperature)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "llama-3.3-70b", resp.Model)
	assert.Equal(t, 17, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestGenerate_CustomAPIKeyHeader(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, completionJSON("ok", "gpt-4o", "stop", 1))
	}))
	defer srv.Close()

	c, err := New(Config{
		Name:         "azure",
		BaseURL:      srv.URL,
		APIKey:       "azure-key",
		APIKeyHeader: "api-key",
	})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), provider.GenerateRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "azure-key", gotKey)
	assert.Empty(t, gotAuth)
}

func TestGenerate_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"message": "rate limit exceeded", "type": "tokens"}}`)
	})

	_, err := c.Generate(context.Background(), provider.GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, gerrors.KindRateLimited, gerrors.KindOf(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")

	var gerr *gerrors.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 30*time.Second, gerr.RetryAfter)
}

func TestGenerate_ServerErrorsAreTransient(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := c.Generate(context.Background(), provider.GenerateRequest{Model: "m"})
		require.Error(t, err, "status %d", status)
		assert.Equal(t, gerrors.KindTransient, gerrors.KindOf(err), "status %d", status)
	}
}

func TestGenerate_ClientErrorsAreFatal(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			io.WriteString(w, `{"error": {"message": "nope"}}`)
		})
		_, err := c.Generate(context.Background(), provider.GenerateRequest{Model: "m"})
		require.Error(t, err, "status %d", status)
		assert.Equal(t, gerrors.KindFatal, gerrors.KindOf(err), "status %d", status)
	}
}

func TestGenerate_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c, err := New(Config{Name: "groq", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), provider.GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, gerrors.KindTransient, gerrors.KindOf(err))
}

func TestGenerate_EmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model": "m", "choices": []}`)
	})

	_, err := c.Generate(context.Background(), provider.GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, gerrors.KindTransient, gerrors.KindOf(err))
	assert.Contains(t, err.Error(), "no choices")
}

func TestHealthCheck(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"data": []}`)
	})

	require.NoError(t, c.HealthCheck(context.Background()))
	assert.Equal(t, "/models", gotPath)
}

func TestHealthCheck_Unavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, gerrors.KindTransient, gerrors.KindOf(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 15*time.Second, parseRetryAfter("15"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.Greater(t, got, 50*time.Second)
	assert.LessOrEqual(t, got, time.Minute)
}
