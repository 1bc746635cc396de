// Package verifier decides whether a request claiming to be a known crawler
// actually originates from that crawler's infrastructure. It classifies the
// declared user agent, runs the dual-DNS and published-range checks
// independently, and combines them under the configured policy.
package verifier

import (
	"context"
	"sync"

	"github.com/rsclarke/crawlguard/internal/dnscheck"
	"github.com/rsclarke/crawlguard/internal/identity"
	"github.com/rsclarke/crawlguard/internal/logging"
	"github.com/rsclarke/crawlguard/internal/ranges"
	"go.uber.org/zap"
)

// Stable justification strings. Callers branch on these to tell outcome
// categories apart, so changing them is a breaking change.
const (
	ReasonUnknownIdentity = "user agent does not claim a recognized crawler identity"
	ReasonBothVerified    = "verified by dual DNS and published ranges"
	ReasonDNSVerified     = "verified by dual DNS"
	ReasonRangeVerified   = "verified by published ranges"
	ReasonNotVerified     = "verification failed; crawler impersonation suspected"
	ReasonStrictFailed    = "strict policy requires both dual DNS and range verification"
	ReasonDNSNoRanges     = "verified by dual DNS; operator publishes no ranges"
	ReasonDNSFailed       = "dual DNS verification failed"
	ReasonCanceled        = "verification canceled before completion"
)

// Request is the immutable input to a single verification.
type Request struct {
	// Addr is the source IP address of the request under scrutiny.
	Addr string
	// UserAgent is the declared agent string.
	UserAgent string
	// RequireBoth demands that both checks pass for identities that
	// publish ranges. Default policy accepts either check alone.
	RequireBoth bool
}

// Result is the complete outcome of one verification. It is produced fresh
// per request and never mutated afterwards.
type Result struct {
	Addr          string       `json:"ip"`
	UserAgent     string       `json:"user_agent"`
	Identity      identity.Key `json:"identity,omitempty"`
	Hostname      string       `json:"rdns_hostname,omitempty"`
	DNSVerified   bool         `json:"rdns_verified"`
	RangeVerified bool         `json:"range_verified"`
	Legitimate    bool         `json:"legitimate"`
	Reason        string       `json:"reason"`
}

// Engine runs crawler identity verification. It is safe for concurrent use;
// the range cache is its only shared mutable state.
type Engine struct {
	registry *identity.Registry
	checker  *dnscheck.Checker
	cache    *ranges.Cache
	logger   *zap.Logger
}

// New creates an Engine over the given registry, DNS checker, and range cache.
func New(registry *identity.Registry, checker *dnscheck.Checker, cache *ranges.Cache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		checker:  checker,
		cache:    cache,
		logger:   logger,
	}
}

// Registry returns the engine's identity registry.
func (e *Engine) Registry() *identity.Registry {
	return e.registry
}

// RangeState reports the range cache state for an identity.
func (e *Engine) RangeState(key identity.Key) ranges.State {
	return e.cache.State(key)
}

// Verify runs the full verification protocol for one request. It always
// returns a complete Result; classification misses, lookup failures, and
// malformed data all degrade to a non-legitimate verdict, never an error.
func (e *Engine) Verify(ctx context.Context, req Request) Result {
	result := Result{
		Addr:      req.Addr,
		UserAgent: req.UserAgent,
	}

	key := e.registry.Classify(req.UserAgent)
	if key == identity.None {
		result.Reason = ReasonUnknownIdentity
		return result
	}
	result.Identity = key
	profile := e.registry.Profile(key)

	// The two checks are independent; run them in parallel. A stall or
	// failure in one never blocks or cancels the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.DNSVerified, result.Hostname = e.checker.Verify(ctx, req.Addr, profile)
	}()
	go func() {
		defer wg.Done()
		result.RangeVerified = e.cache.Contains(ctx, req.Addr, key)
	}()
	wg.Wait()

	result.Legitimate, result.Reason = combine(profile.HasRangeSource(), result.DNSVerified, result.RangeVerified, req.RequireBoth)

	// Fail closed on cancellation, with a reason the host can tell apart
	// from an ordinary negative verdict.
	if !result.Legitimate && ctx.Err() != nil {
		result.Reason = ReasonCanceled
	}

	e.logger.Info("verification complete",
		logging.Addr(req.Addr),
		logging.Identity(string(key)),
		logging.Hostname(result.Hostname),
		zap.Bool("rdns_verified", result.DNSVerified),
		zap.Bool("range_verified", result.RangeVerified),
		logging.Verdict(result.Legitimate),
	)

	return result
}

// combine merges the two check outcomes under the policy flag into the
// final verdict and its justification.
func combine(hasRanges, dnsOK, rangeOK, requireBoth bool) (bool, string) {
	if requireBoth {
		if !hasRanges {
			// No published ranges; the range check is vacuously skipped
			// rather than counted as failing.
			if dnsOK {
				return true, ReasonDNSNoRanges
			}
			return false, ReasonDNSFailed
		}
		if dnsOK && rangeOK {
			return true, ReasonBothVerified
		}
		return false, ReasonStrictFailed
	}

	switch {
	case dnsOK && rangeOK:
		return true, ReasonBothVerified
	case dnsOK:
		return true, ReasonDNSVerified
	case rangeOK:
		return true, ReasonRangeVerified
	default:
		return false, ReasonNotVerified
	}
}
