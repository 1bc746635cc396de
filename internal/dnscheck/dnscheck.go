// Package dnscheck verifies a source address against a crawler identity
// using dual-direction DNS resolution: the address's reverse record must
// name a host under the crawler's domains, and that host must forward-resolve
// back to the original address. An attacker needs control of both DNS
// directions to pass.
package dnscheck

import (
	"context"
	"net/netip"

	"github.com/rsclarke/crawlguard/internal/identity"
	"github.com/rsclarke/crawlguard/internal/logging"
	"go.uber.org/zap"
)

// Checker performs dual-DNS verification.
type Checker struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewChecker creates a Checker using the given resolver.
func NewChecker(resolver Resolver, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{resolver: resolver, logger: logger}
}

// Verify reports whether addr belongs to the crawler described by profile,
// along with the reverse-DNS hostname when one resolved. Every resolution
// failure is absorbed as non-verification; Verify never returns an error.
func (c *Checker) Verify(ctx context.Context, addr string, profile *identity.Profile) (bool, string) {
	names, err := c.resolver.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		c.logger.Debug("reverse lookup failed", logging.Addr(addr), zap.Error(err))
		return false, ""
	}

	// Several PTR records may exist; any one naming a host under the
	// crawler's domains is a candidate for forward confirmation.
	hostname := names[0]
	var matched string
	for _, name := range names {
		if profile.MatchHostname(name) {
			matched = name
			break
		}
	}
	if matched == "" {
		c.logger.Debug("reverse hostname outside crawler domains",
			logging.Addr(addr), logging.Hostname(hostname), logging.Identity(string(profile.Key)))
		return false, hostname
	}

	forward, err := c.resolver.LookupHost(ctx, matched)
	if err != nil {
		c.logger.Debug("forward lookup failed", logging.Hostname(matched), zap.Error(err))
		return false, matched
	}

	source, err := netip.ParseAddr(addr)
	if err != nil {
		c.logger.Debug("unparseable source address", logging.Addr(addr), zap.Error(err))
		return false, matched
	}
	source = source.Unmap()

	for _, candidate := range forward {
		parsed, err := netip.ParseAddr(candidate)
		if err != nil {
			continue
		}
		if parsed.Unmap() == source {
			c.logger.Debug("dual-dns confirmed",
				logging.Addr(addr), logging.Hostname(matched), logging.Identity(string(profile.Key)))
			return true, matched
		}
	}

	c.logger.Debug("forward records do not include source address",
		logging.Addr(addr), logging.Hostname(matched))
	return false, matched
}
