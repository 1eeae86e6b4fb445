package modelgate

import (
	"log/slog"
	"time"

	"github.com/codeassist/modelgate/pkg/admission"
	"github.com/codeassist/modelgate/pkg/cache"
	"github.com/codeassist/modelgate/pkg/provider"
	"github.com/codeassist/modelgate/pkg/router"
)

// GatewayConfig holds all configuration for the Gateway.
type GatewayConfig struct {
	// Chains maps each task category to its ordered fallback chain.
	Chains map[router.TaskCategory][]provider.Binding

	// Admission configures the rate limiter. The zero value uses the
	// default tiers.
	Admission admission.Config

	// AdmissionDisabled turns admission control off; every request is
	// admitted.
	AdmissionDisabled bool

	// Cache configures the response cache. With no Redis address the
	// cache runs memory-only.
	Cache cache.Config

	// CacheTTL applies to responses written by Complete
	// (default: 1 hour).
	CacheTTL time.Duration

	// CallTimeout bounds each provider call made while routing
	// (default: 60s).
	CallTimeout time.Duration

	// Logger receives structured logs from all components.
	Logger *slog.Logger

	// Now overrides the clock used by admission control, for tests.
	Now func() time.Time
}

// Option configures the Gateway.
type Option func(*GatewayConfig)

func defaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Chains:   make(map[router.TaskCategory][]provider.Binding),
		CacheTTL: time.Hour,
	}
}

// WithBinding appends a (provider, model) binding to a category's
// fallback chain. Bindings are tried in the order they are added.
func WithBinding(category TaskCategory, client ProviderClient, model string) Option {
	return func(cfg *GatewayConfig) {
		cfg.Chains[category] = append(cfg.Chains[category], provider.Binding{
			Client: client,
			Model:  model,
		})
	}
}

// WithChain replaces a category's entire fallback chain.
func WithChain(category TaskCategory, chain []Binding) Option {
	return func(cfg *GatewayConfig) {
		cfg.Chains[category] = chain
	}
}

// WithAdmission sets the admission controller configuration.
func WithAdmission(admCfg AdmissionConfig) Option {
	return func(cfg *GatewayConfig) {
		cfg.Admission = admCfg
	}
}

// WithoutAdmission disables admission control entirely.
func WithoutAdmission() Option {
	return func(cfg *GatewayConfig) {
		cfg.AdmissionDisabled = true
	}
}

// WithCache sets the response cache configuration.
func WithCache(cacheCfg CacheConfig) Option {
	return func(cfg *GatewayConfig) {
		cfg.Cache = cacheCfg
	}
}

// WithoutCache disables response caching.
func WithoutCache() Option {
	return func(cfg *GatewayConfig) {
		cfg.Cache.Disabled = true
	}
}

// WithCacheTTL sets the TTL for responses cached by Complete.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *GatewayConfig) {
		cfg.CacheTTL = ttl
	}
}

// WithCallTimeout bounds each provider call made while routing.
func WithCallTimeout(timeout time.Duration) Option {
	return func(cfg *GatewayConfig) {
		cfg.CallTimeout = timeout
	}
}

// WithLogger sets the structured logger used by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *GatewayConfig) {
		cfg.Logger = logger
	}
}

// WithClock overrides the admission clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(cfg *GatewayConfig) {
		cfg.Now = now
	}
}
