// Package admission gates incoming requests under multiple simultaneous
// quota dimensions: a per-identifier tier (API key hash or client IP)
// and a global all-traffic tier, with escalating temporary blocks for
// identifiers that keep violating their window.
package admission

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/codeassist/modelgate/internal/metrics"
	gerrors "github.com/codeassist/modelgate/pkg/errors"
)

// Tier is a dimension along which admission is independently limited.
type Tier string

const (
	// TierPerKey limits authenticated traffic, keyed by API key hash.
	TierPerKey Tier = "per_key"

	// TierPerIP limits anonymous traffic, keyed by client IP.
	TierPerIP Tier = "per_ip"

	// TierGlobal limits all traffic combined under one shared bucket.
	TierGlobal Tier = "global"
)

// globalIdentifier is the shared bucket every request counts against.
const globalIdentifier = "all_traffic"

const shardCount = 32

// TierConfig is the window size and request cap for one tier.
type TierConfig struct {
	Window time.Duration
	Cap    int
}

// Config holds construction-time controller configuration. Zero fields
// take defaults.
type Config struct {
	PerKey TierConfig // default: 60s window, 60 requests
	PerIP  TierConfig // default: 60s window, 30 requests
	Global TierConfig // default: 60s window, 1000 requests

	// ViolationThreshold is the number of window-exceeded events after
	// which an identifier is temporarily blocked (default: 3).
	ViolationThreshold int

	// BlockDuration is how long a blocked identifier stays rejected
	// (default: 5 minutes).
	BlockDuration time.Duration

	// CleanupInterval controls the idle-entry sweep (default: 1 minute).
	CleanupInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Blocked    bool // rejection escalated to a temporary block
	Reason     string
	RetryAfter time.Duration
	Remaining  int // quota left in the decided tier after this request
}

// Err converts a rejecting decision into the error the caller surfaces.
// Returns nil for an allowing decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Blocked {
		return gerrors.NewTemporarilyBlocked(d.Reason, d.RetryAfter)
	}
	return gerrors.NewAdmissionRejected(d.Reason, d.RetryAfter)
}

type window struct {
	timestamps   []time.Time
	violations   int
	blockedUntil time.Time
	blocked      bool // block currently counted in the ActiveBlocks gauge
	lastSeen     time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Controller is the multi-tier sliding-window admission controller.
// Window state is sharded by identifier so concurrent checks for
// different identifiers do not contend; each check runs as a single
// atomic read-modify-write under its shard lock.
type Controller struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	shards [shardCount]shard

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New creates an admission controller and starts its idle-entry sweep.
func New(cfg Config) *Controller {
	if cfg.PerKey.Window <= 0 {
		cfg.PerKey.Window = time.Minute
	}
	if cfg.PerKey.Cap <= 0 {
		cfg.PerKey.Cap = 60
	}
	if cfg.PerIP.Window <= 0 {
		cfg.PerIP.Window = time.Minute
	}
	if cfg.PerIP.Cap <= 0 {
		cfg.PerIP.Cap = 30
	}
	if cfg.Global.Window <= 0 {
		cfg.Global.Window = time.Minute
	}
	if cfg.Global.Cap <= 0 {
		cfg.Global.Cap = 1000
	}
	if cfg.ViolationThreshold <= 0 {
		cfg.ViolationThreshold = 3
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		cfg:         cfg,
		now:         cfg.Now,
		logger:      cfg.Logger,
		stopCleanup: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i].windows = make(map[string]*window)
	}

	go c.cleanupLoop()

	return c
}

// tierConfig returns the window/cap pair for a tier.
func (c *Controller) tierConfig(tier Tier) TierConfig {
	switch tier {
	case TierPerKey:
		return c.cfg.PerKey
	case TierPerIP:
		return c.cfg.PerIP
	default:
		return c.cfg.Global
	}
}

func (c *Controller) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%shardCount]
}

func windowKey(identifier string, tier Tier) string {
	return string(tier) + ":" + identifier
}

// Check runs the admission algorithm for identifier under tier, then
// re-checks the shared global bucket. A per-identifier rejection
// short-circuits before the global check; a global rejection overrides
// a passing per-identifier check. customLimit > 0 overrides the tier's
// request cap for this identifier (e.g. a raised cap tied to an
// authenticated key).
func (c *Controller) Check(identifier string, tier Tier, customLimit int) Decision {
	d := c.checkTier(identifier, tier, customLimit)
	if !d.Allowed {
		metrics.AdmissionDecisions.WithLabelValues(string(tier), rejectionLabel(d)).Inc()
		return d
	}

	if tier != TierGlobal {
		if gd := c.checkTier(globalIdentifier, TierGlobal, 0); !gd.Allowed {
			metrics.AdmissionDecisions.WithLabelValues(string(TierGlobal), rejectionLabel(gd)).Inc()
			return gd
		}
	}

	metrics.AdmissionDecisions.WithLabelValues(string(tier), "allowed").Inc()
	return d
}

// CheckRequest applies the tier selection policy: requests carrying an
// authenticated key hash are limited by that hash only, anonymous
// requests by client IP, never both. This mirrors the reference
// system's deliberate choice to exempt authenticated callers from
// IP-based limits (shared NAT addresses would otherwise double-penalize
// keyed traffic); both paths still count against the global bucket.
func (c *Controller) CheckRequest(apiKeyHash, clientIP string, customLimit int) Decision {
	if apiKeyHash != "" {
		return c.Check(apiKeyHash, TierPerKey, customLimit)
	}
	return c.Check(clientIP, TierPerIP, customLimit)
}

// checkTier executes the sliding-window algorithm atomically for one
// (identifier, tier) pair.
func (c *Controller) checkTier(identifier string, tier Tier, customLimit int) Decision {
	tc := c.tierConfig(tier)
	limit := tc.Cap
	if customLimit > 0 {
		limit = customLimit
	}

	key := windowKey(identifier, tier)
	sh := c.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := c.now()

	w, ok := sh.windows[key]
	if !ok {
		w = &window{}
		sh.windows[key] = w
	}
	w.lastSeen = now

	// Active block: reject without touching the window.
	if now.Before(w.blockedUntil) {
		remaining := w.blockedUntil.Sub(now)
		return Decision{
			Blocked:    true,
			Reason:     fmt.Sprintf("temporarily blocked, retry in %d seconds", int(remaining.Seconds()+0.5)),
			RetryAfter: remaining,
		}
	}

	// Block just expired: clear it and reset the violation counter.
	if !w.blockedUntil.IsZero() {
		w.blockedUntil = time.Time{}
		w.violations = 0
		if w.blocked {
			w.blocked = false
			metrics.ActiveBlocks.Dec()
		}
	}

	// Prune entries that slid out of the window.
	cutoff := now.Add(-tc.Window)
	pruned := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	w.timestamps = pruned

	if len(w.timestamps) >= limit {
		w.violations++
		if w.violations >= c.cfg.ViolationThreshold {
			w.blockedUntil = now.Add(c.cfg.BlockDuration)
			if !w.blocked {
				w.blocked = true
				metrics.ActiveBlocks.Inc()
			}
			c.logger.Warn("identifier blocked for repeated violations",
				"tier", string(tier),
				"identifier", identifier,
				"violations", w.violations,
				"blocked_until", w.blockedUntil,
			)
			return Decision{
				Blocked:    true,
				Reason:     "too many violations, temporarily blocked",
				RetryAfter: c.cfg.BlockDuration,
			}
		}

		// Hint when the oldest counted request slides out of the window.
		retryAfter := tc.Window
		if len(w.timestamps) > 0 {
			retryAfter = w.timestamps[0].Add(tc.Window).Sub(now)
		}
		c.logger.Warn("rate limit exceeded",
			"tier", string(tier),
			"identifier", identifier,
			"violations", w.violations,
		)
		return Decision{
			Reason:     "rate limit exceeded",
			RetryAfter: retryAfter,
		}
	}

	w.timestamps = append(w.timestamps, now)
	return Decision{
		Allowed:   true,
		Remaining: limit - len(w.timestamps),
	}
}

// RemainingQuota reports how many requests identifier can still make in
// its tier's current window. Read-only: prunes nothing and appends
// nothing.
func (c *Controller) RemainingQuota(identifier string, tier Tier) int {
	tc := c.tierConfig(tier)
	key := windowKey(identifier, tier)
	sh := c.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := c.now()
	w, ok := sh.windows[key]
	if !ok {
		return tc.Cap
	}
	if now.Before(w.blockedUntil) {
		return 0
	}

	cutoff := now.Add(-tc.Window)
	live := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			live++
		}
	}
	if live >= tc.Cap {
		return 0
	}
	return tc.Cap - live
}

// Close stops the cleanup goroutine.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
}

func (c *Controller) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup drops identifiers that are idle past the largest window and
// are not under an active block.
func (c *Controller) cleanup() {
	now := c.now()
	idleCutoff := now.Add(-c.maxWindow() * 2)

	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for key, w := range sh.windows {
			if now.Before(w.blockedUntil) {
				continue
			}
			if w.lastSeen.Before(idleCutoff) {
				if w.blocked {
					metrics.ActiveBlocks.Dec()
				}
				delete(sh.windows, key)
			}
		}
		sh.mu.Unlock()
	}
}

func (c *Controller) maxWindow() time.Duration {
	max := c.cfg.PerKey.Window
	if c.cfg.PerIP.Window > max {
		max = c.cfg.PerIP.Window
	}
	if c.cfg.Global.Window > max {
		max = c.cfg.Global.Window
	}
	if c.cfg.BlockDuration > max {
		max = c.cfg.BlockDuration
	}
	return max
}

func rejectionLabel(d Decision) string {
	if d.Blocked {
		return "blocked"
	}
	return "rate_limited"
}
