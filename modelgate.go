// Package modelgate is a resilience layer between application code and
// unreliable, rate-limited AI completion providers. It composes three
// concerns the serving layer would otherwise reimplement per handler:
// ordered provider fallback chains per task category, multi-tier
// sliding-window admission control, and a response cache that degrades
// from Redis to memory without surfacing cache failures.
//
// Basic usage:
//
//	groq, _ := openaicompat.New(openaicompat.Config{
//	    Name:    "groq",
//	    BaseURL: "https://api.groq.com/openai/v1",
//	    APIKey:  os.Getenv("GROQ_API_KEY"),
//	})
//
//	gw, err := modelgate.New(
//	    modelgate.WithBinding(modelgate.CategoryReview, groq, "llama-3.3-70b-versatile"),
//	    modelgate.WithCache(cache.Config{Redis: &cache.RedisConfig{Addr: "localhost:6379"}}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	resp, err := gw.Complete(ctx, modelgate.CompleteRequest{
//	    Category: modelgate.CategoryReview,
//	    ClientIP: "10.0.0.1",
//	    Request: provider.GenerateRequest{
//	        Messages: []provider.Message{{Role: "user", Content: "review this diff"}},
//	    },
//	})
package modelgate

import (
	"github.com/codeassist/modelgate/pkg/admission"
	"github.com/codeassist/modelgate/pkg/cache"
	"github.com/codeassist/modelgate/pkg/errors"
	"github.com/codeassist/modelgate/pkg/provider"
	"github.com/codeassist/modelgate/pkg/router"
)

// Version is the current version of modelgate.
const Version = "1.0.0"

// Re-export provider types for convenience. Users can write
// modelgate.Message instead of provider.Message.
type (
	// ProviderClient is the contract every provider adapter implements.
	ProviderClient = provider.Client

	// GenerateRequest carries the arguments of one completion call.
	GenerateRequest = provider.GenerateRequest

	// Message is a single conversation message.
	Message = provider.Message

	// Response is a completed generation.
	Response = provider.Response

	// Binding pairs a provider client with the model it serves.
	Binding = provider.Binding
)

// Re-export router types.
type (
	// TaskCategory names a class of work with its own fallback chain.
	TaskCategory = router.TaskCategory

	// Router walks a category's fallback chain until a provider answers.
	Router = router.Router
)

// Re-export admission types.
type (
	// AdmissionConfig configures the sliding-window admission tiers.
	AdmissionConfig = admission.Config

	// AdmissionDecision is the outcome of an admission check.
	AdmissionDecision = admission.Decision

	// Tier identifies which admission window a check ran against.
	Tier = admission.Tier
)

// Re-export cache types.
type (
	// CacheConfig configures the resilient response cache.
	CacheConfig = cache.Config

	// CacheStats reports the cache's active backend and counters.
	CacheStats = cache.Stats
)

// Re-export error types.
type (
	// Error is the gateway's standardized error.
	Error = errors.Error

	// ErrorKind classifies an error for fallback decisions.
	ErrorKind = errors.Kind
)

// Re-export task category constants.
const (
	CategoryReview        = router.CategoryReview
	CategoryDocumentation = router.CategoryDocumentation
	CategoryBugPrediction = router.CategoryBugPrediction
	CategoryGeneration    = router.CategoryGeneration
)

// Re-export admission tier constants.
const (
	TierPerKey = admission.TierPerKey
	TierPerIP  = admission.TierPerIP
	TierGlobal = admission.TierGlobal
)

// Re-export error kind constants.
const (
	KindRateLimited        = errors.KindRateLimited
	KindTransient          = errors.KindTransient
	KindFatal              = errors.KindFatal
	KindServiceUnavailable = errors.KindServiceUnavailable
	KindAdmissionRejected  = errors.KindAdmissionRejected
	KindTemporarilyBlocked = errors.KindTemporarilyBlocked
)

// Re-export commonly used helpers.
var (
	// KindOf classifies any error into an ErrorKind.
	KindOf = errors.KindOf

	// IsRejection reports whether an error came from admission control.
	IsRejection = errors.IsRejection

	// HashAPIKey derives the admission identifier for an API key.
	HashAPIKey = admission.HashAPIKey
)
