// Package provider defines the uniform capability every upstream
// completion provider exposes to the gateway core. Each provider adapter
// (Groq, Cerebras, Azure, ...) implements Client; failures are classified
// into error kinds at this boundary, never surfaced raw.
package provider

import (
	"context"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest carries the semantic arguments of a completion call.
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Response is a completed generation.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// Client is the uniform provider capability consumed by the router.
// Generate errors must be *errors.Error values carrying a kind
// (RateLimited, Transient or Fatal) so the router can branch on
// classification.
type Client interface {
	// Name returns the provider identifier (e.g. "groq", "cerebras").
	Name() string

	// Generate performs a single completion call. Implementations must
	// honor ctx cancellation and release the underlying connection when
	// the context is done.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)

	// HealthCheck performs a lightweight liveness probe. A nil return
	// means healthy. Advisory only; routing order never depends on it.
	HealthCheck(ctx context.Context) error
}

// Binding pairs a provider client with the model it should serve.
// Bindings are immutable configuration, assembled at startup and shared
// read-only across all request-handling goroutines.
type Binding struct {
	Client Client
	Model  string
}
