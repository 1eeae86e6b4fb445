// Package router routes completion tasks to an ordered fallback chain
// of provider bindings. Chains are immutable configuration, validated at
// startup; ordering is fixed priority and never changes at runtime.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeassist/modelgate/internal/metrics"
	gerrors "github.com/codeassist/modelgate/pkg/errors"
	"github.com/codeassist/modelgate/pkg/provider"
)

// TaskCategory identifies what kind of completion a request needs.
// The set is closed; every supported category must have a non-empty
// fallback chain.
type TaskCategory string

const (
	CategoryReview        TaskCategory = "code_review"
	CategoryDocumentation TaskCategory = "documentation"
	CategoryBugPrediction TaskCategory = "bug_prediction"
	CategoryGeneration    TaskCategory = "code_generation"
)

// Categories lists every supported task category.
func Categories() []TaskCategory {
	return []TaskCategory{
		CategoryReview,
		CategoryDocumentation,
		CategoryBugPrediction,
		CategoryGeneration,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryReview, CategoryDocumentation, CategoryBugPrediction, CategoryGeneration:
		return true
	}
	return false
}

// Config holds construction-time router configuration.
type Config struct {
	// Chains maps each category to its ordered fallback chain.
	Chains map[TaskCategory][]provider.Binding

	// CallTimeout bounds each individual provider call
	// (default: 60 seconds).
	CallTimeout time.Duration

	// ProbeTimeout bounds each health check probe (default: 10 seconds).
	ProbeTimeout time.Duration

	Logger *slog.Logger
}

// Router tries each binding of a category's chain in fixed order until
// one succeeds or the chain is exhausted.
type Router struct {
	chains       map[TaskCategory][]provider.Binding
	callTimeout  time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New validates the chains and builds a router. Every configured
// category must have at least one binding with a non-nil client.
func New(cfg Config) (*Router, error) {
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("router: no fallback chains configured")
	}
	for category, chain := range cfg.Chains {
		if !category.Valid() {
			return nil, fmt.Errorf("router: unknown task category %q", category)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("router: empty fallback chain for category %q", category)
		}
		for i, b := range chain {
			if b.Client == nil {
				return nil, fmt.Errorf("router: nil client at position %d of category %q", i, category)
			}
			if b.Model == "" {
				return nil, fmt.Errorf("router: empty model at position %d of category %q", i, category)
			}
		}
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	chains := make(map[TaskCategory][]provider.Binding, len(cfg.Chains))
	for category, chain := range cfg.Chains {
		chains[category] = append([]provider.Binding(nil), chain...)
	}

	return &Router{
		chains:       chains,
		callTimeout:  cfg.CallTimeout,
		probeTimeout: cfg.ProbeTimeout,
		logger:       cfg.Logger,
	}, nil
}

// Route sends req down the category's fallback chain. Each binding is
// called exactly once, in priority order, under its own timeout; the
// first success returns immediately. When the chain is exhausted the
// returned error aggregates every failure, provider name and reason, in
// attempt order.
func (r *Router) Route(ctx context.Context, category TaskCategory, req provider.GenerateRequest) (*provider.Response, error) {
	chain, ok := r.chains[category]
	if !ok {
		return nil, fmt.Errorf("router: no fallback chain for category %q", category)
	}

	logger := r.logger.With("category", string(category), "request_id", uuid.NewString())

	var causes []error
	for _, binding := range chain {
		name := binding.Client.Name()
		req.Model = binding.Model

		logger.Info("attempting provider", "provider", name, "model", binding.Model)
		start := time.Now()

		resp, err := r.generateOnce(ctx, binding, req)
		if err == nil {
			logger.Info("provider succeeded",
				"provider", name,
				"model", binding.Model,
				"latency_ms", time.Since(start).Milliseconds(),
			)
			metrics.ProviderAttempts.WithLabelValues(name, binding.Model, "success").Inc()
			return resp, nil
		}

		if ctx.Err() != nil {
			// The caller is gone; stop walking the chain.
			return nil, ctx.Err()
		}

		kind := gerrors.KindOf(err)
		logger.Warn("provider failed",
			"provider", name,
			"model", binding.Model,
			"kind", string(kind),
			"error", err,
		)
		metrics.ProviderAttempts.WithLabelValues(name, binding.Model, string(kind)).Inc()
		causes = append(causes, err)
	}

	metrics.ChainExhausted.WithLabelValues(string(category)).Inc()
	logger.Error("all providers failed", "attempts", len(causes))
	return nil, gerrors.NewServiceUnavailable(
		fmt.Sprintf("all providers unavailable for %s", category),
		causes...,
	)
}

// generateOnce runs a single provider call under the router's per-call
// timeout. Canceling the timeout context releases the underlying
// connection, so at most one provider call is ever outstanding per
// Route invocation.
func (r *Router) generateOnce(ctx context.Context, binding provider.Binding, req provider.GenerateRequest) (*provider.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return binding.Client.Generate(callCtx, req)
}

// HealthCheck probes every distinct provider concurrently and reports
// availability by provider name. Advisory only: results never influence
// routing order and unhealthy providers are not skipped by Route.
func (r *Router) HealthCheck(ctx context.Context) map[string]bool {
	clients := make(map[string]provider.Client)
	for _, chain := range r.chains {
		for _, b := range chain {
			clients[b.Client.Name()] = b.Client
		}
	}

	health := make(map[string]bool, len(clients))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range clients {
		wg.Add(1)
		go func(name string, client provider.Client) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
			defer cancel()

			err := client.HealthCheck(probeCtx)
			if err != nil {
				r.logger.Warn("health check failed", "provider", name, "error", err)
			}

			mu.Lock()
			health[name] = err == nil
			mu.Unlock()
		}(name, client)
	}
	wg.Wait()

	return health
}

// Chain returns a copy of the fallback chain for a category, for
// introspection by the surrounding application.
func (r *Router) Chain(category TaskCategory) []provider.Binding {
	return append([]provider.Binding(nil), r.chains[category]...)
}

// Providers returns the distinct provider names across all chains,
// sorted for stable output.
func (r *Router) Providers() []string {
	seen := make(map[string]struct{})
	for _, chain := range r.chains {
		for _, b := range chain {
			seen[b.Client.Name()] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
