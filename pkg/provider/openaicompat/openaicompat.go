// Package openaicompat implements a provider client for any service
// exposing the OpenAI chat-completions API surface. Groq, Cerebras and
// Azure OpenAI deployments all speak this dialect with minor variations,
// so a single adapter covers them.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	gerrors "github.com/codeassist/modelgate/pkg/errors"
	"github.com/codeassist/modelgate/pkg/provider"
)

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	// Name is the provider identifier used in routing and metrics
	// (e.g. "groq", "cerebras", "azure").
	Name string

	// BaseURL is the API root, without a trailing slash
	// (e.g. "https://api.groq.com/openai/v1").
	BaseURL string

	// APIKey is sent as a bearer token unless APIKeyHeader overrides it.
	APIKey string

	// APIKeyHeader replaces the Authorization header for providers that
	// use a custom scheme (Azure uses "api-key" with no prefix).
	APIKeyHeader string

	// ExtraHeaders are added to every request.
	ExtraHeaders map[string]string

	// Timeout bounds each HTTP call. Default 60s.
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to a single OpenAI-compatible endpoint.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	header  string
	extra   map[string]string
	http    *http.Client
}

var _ provider.Client = (*Client)(nil)

// New creates a client for the configured endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("openaicompat: provider name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: base URL is required for %s", cfg.Name)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		header:  cfg.APIKeyHeader,
		extra:   cfg.ExtraHeaders,
		http:    httpClient,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// chatRequest is the OpenAI chat-completions wire format.
type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends one chat-completion request and returns the first choice.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, gerrors.NewFatal(c.name, req.Model, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, gerrors.NewFatal(c.name, req.Model, fmt.Sprintf("create request: %v", err))
	}
	c.setHeaders(httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Connection refused, DNS failure, client-side timeout: all
		// worth retrying on the next provider in the chain.
		return nil, gerrors.NewTransient(c.name, req.Model, err.Error())
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gerrors.NewTransient(c.name, req.Model, fmt.Sprintf("read response: %v", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.mapError(httpResp, respBody, req.Model)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, gerrors.NewTransient(c.name, req.Model, fmt.Sprintf("unmarshal response: %v", err))
	}
	if len(chatResp.Choices) == 0 {
		return nil, gerrors.NewTransient(c.name, req.Model, "response contained no choices")
	}

	model := chatResp.Model
	if model == "" {
		model = req.Model
	}
	return &provider.Response{
		Content:      chatResp.Choices[0].Message.Content,
		Model:        model,
		Provider:     c.name,
		TokensUsed:   chatResp.Usage.TotalTokens,
		FinishReason: chatResp.Choices[0].FinishReason,
	}, nil
}

// HealthCheck lists models as a cheap liveness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return gerrors.NewFatal(c.name, "", fmt.Sprintf("create request: %v", err))
	}
	c.setHeaders(httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return gerrors.NewTransient(c.name, "", err.Error())
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return c.mapError(httpResp, nil, "")
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		if c.header != "" {
			req.Header.Set(c.header, c.apiKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}
	for k, v := range c.extra {
		req.Header.Set(k, v)
	}
}

// errorBody is the OpenAI-compatible error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// mapError classifies an HTTP failure. 429 is rate limiting, 5xx and
// timeouts are transient, anything else from the 4xx family is a caller
// mistake that retrying elsewhere cannot fix on the same request shape,
// but a different provider may still accept it, so only auth and bad
// request are fatal.
func (c *Client) mapError(resp *http.Response, body []byte, model string) error {
	message := http.StatusText(resp.StatusCode)
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e := gerrors.NewRateLimited(c.name, model, message)
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			e.RetryAfter = d
		}
		return e
	case http.StatusRequestTimeout, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return gerrors.NewTransient(c.name, model, message)
	default:
		if resp.StatusCode >= 500 {
			return gerrors.NewTransient(c.name, model, message)
		}
		return gerrors.NewFatal(c.name, model, message)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
