// Package metrics exposes Prometheus instrumentation for the gateway core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modelgate"

var (
	// ProviderAttempts counts generate calls per provider and outcome.
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider generate attempts by provider, model and outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	// ChainExhausted counts route calls where every binding failed.
	ChainExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_exhausted_total",
			Help:      "Route invocations that exhausted the fallback chain",
		},
		[]string{"category"},
	)

	// AdmissionDecisions counts admission checks by tier and decision.
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by tier and outcome",
		},
		[]string{"tier", "decision"},
	)

	// ActiveBlocks tracks identifiers currently under a violation block.
	ActiveBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_active_blocks",
			Help:      "Identifiers currently blocked for repeated violations",
		},
	)

	// CacheOps counts cache operations by backend and outcome.
	CacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_ops_total",
			Help:      "Cache operations by backend and outcome",
		},
		[]string{"backend", "op", "outcome"},
	)

	// CacheDegraded counts permanent fallbacks from the durable backend.
	CacheDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_degraded_total",
			Help:      "Times the cache degraded from the durable to the memory backend",
		},
	)
)
