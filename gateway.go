package modelgate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/codeassist/modelgate/pkg/admission"
	"github.com/codeassist/modelgate/pkg/cache"
	"github.com/codeassist/modelgate/pkg/provider"
	"github.com/codeassist/modelgate/pkg/router"
)

// Gateway composes admission control, the response cache and the
// fallback router into one entry point for the serving layer.
//
// Gateway is safe for concurrent use by multiple goroutines.
type Gateway struct {
	router    *router.Router
	admission *admission.Controller
	cache     *cache.Resilient
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// CompleteRequest carries one completion call through the gateway.
type CompleteRequest struct {
	// Category selects the fallback chain.
	Category TaskCategory

	// APIKeyHash identifies the caller for per-key admission. Derive it
	// with HashAPIKey; leave empty for unauthenticated traffic.
	APIKeyHash string

	// ClientIP identifies unauthenticated callers for per-IP admission.
	ClientIP string

	// CustomLimit overrides the per-identifier window cap when
	// positive.
	CustomLimit int

	// Request is the completion call itself. Its Model field is
	// overridden per binding while routing.
	Request GenerateRequest

	// NoCache bypasses the response cache for this call.
	NoCache bool
}

// CompleteResult pairs the response with serving metadata.
type CompleteResult struct {
	Response *Response

	// Cached is true when the response was served from the cache.
	Cached bool

	// CachedAt is the unix timestamp the cached response was stored,
	// zero for fresh responses.
	CachedAt int64
}

// New creates a Gateway from the given options. At least one category
// binding is required.
func New(opts ...Option) (*Gateway, error) {
	cfg := defaultGatewayConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rt, err := router.New(router.Config{
		Chains:      cfg.Chains,
		CallTimeout: cfg.CallTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("modelgate: %w", err)
	}

	g := &Gateway{
		router:   rt,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}

	if !cfg.AdmissionDisabled {
		admCfg := cfg.Admission
		if admCfg.Logger == nil {
			admCfg.Logger = logger
		}
		if cfg.Now != nil {
			admCfg.Now = cfg.Now
		}
		g.admission = admission.New(admCfg)
	}

	cacheCfg := cfg.Cache
	if cacheCfg.Logger == nil {
		cacheCfg.Logger = logger
	}
	g.cache = cache.New(cacheCfg)

	return g, nil
}

// Complete runs one completion through the full pipeline: admission,
// cache lookup, fallback routing, cache write. Rejections surface as
// admission errors; chain exhaustion as a ServiceUnavailable error
// aggregating every provider failure. Cache trouble never surfaces.
func (g *Gateway) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	if g.admission != nil {
		decision := g.admission.CheckRequest(req.APIKeyHash, req.ClientIP, req.CustomLimit)
		if err := decision.Err(); err != nil {
			return nil, err
		}
	}

	key := g.cacheKey(req)
	if !req.NoCache {
		if result := g.cacheLookup(ctx, key); result != nil {
			return result, nil
		}
	}

	resp, err := g.router.Route(ctx, req.Category, req.Request)
	if err != nil {
		return nil, err
	}

	if !req.NoCache {
		g.cacheStore(ctx, key, resp)
	}
	return &CompleteResult{Response: resp}, nil
}

// cacheKey derives the deterministic cache identity of a request.
// Messages are serialized with canonical field order; per-identity
// fields that vary per caller (API key, IP) deliberately stay out so
// identical requests share entries.
func (g *Gateway) cacheKey(req CompleteRequest) string {
	messages, err := json.Marshal(req.Request.Messages)
	if err != nil {
		// Unserializable messages get no cache identity; an empty key
		// skips both lookup and store for this call.
		return ""
	}
	return cache.GenerateKey("completion", cache.KeyParams{
		Category:    string(req.Category),
		Model:       req.Request.Model,
		Messages:    messages,
		Temperature: req.Request.Temperature,
		MaxTokens:   req.Request.MaxTokens,
	})
}

func (g *Gateway) cacheLookup(ctx context.Context, key string) *CompleteResult {
	if key == "" {
		return nil
	}
	raw := g.cache.Get(ctx, key)
	if raw == nil {
		return nil
	}

	var env cache.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.logger.Warn("dropping undecodable cache entry", "error", err)
		g.cache.Delete(ctx, key)
		return nil
	}

	var resp provider.Response
	if err := json.Unmarshal(env.Response, &resp); err != nil {
		g.logger.Warn("dropping undecodable cached response", "error", err)
		g.cache.Delete(ctx, key)
		return nil
	}

	return &CompleteResult{
		Response: &resp,
		Cached:   true,
		CachedAt: env.Timestamp,
	}
}

func (g *Gateway) cacheStore(ctx context.Context, key string, resp *provider.Response) {
	if key == "" {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	env, err := json.Marshal(cache.Envelope{
		Timestamp: time.Now().Unix(),
		Provider:  resp.Provider,
		Model:     resp.Model,
		Response:  body,
	})
	if err != nil {
		return
	}
	g.cache.Set(ctx, key, env, g.cacheTTL)
}

// HealthCheck probes every configured provider. Advisory only; an
// unhealthy provider stays in its chains.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]bool {
	return g.router.HealthCheck(ctx)
}

// RemainingQuota reports the quota left for an identifier in a tier
// without consuming any.
func (g *Gateway) RemainingQuota(identifier string, tier Tier) int {
	if g.admission == nil {
		return -1
	}
	return g.admission.RemainingQuota(identifier, tier)
}

// CacheStats reports the cache's active backend and counters.
func (g *Gateway) CacheStats(ctx context.Context) CacheStats {
	return g.cache.Stats(ctx)
}

// ClearCache drops all cached responses. Returns false if the active
// backend could not be cleared.
func (g *Gateway) ClearCache(ctx context.Context) bool {
	return g.cache.Clear(ctx)
}

// Providers returns the distinct provider names across all chains.
func (g *Gateway) Providers() []string {
	return g.router.Providers()
}

// Close releases admission and cache resources.
func (g *Gateway) Close() error {
	if g.admission != nil {
		g.admission.Close()
	}
	return g.cache.Close()
}
