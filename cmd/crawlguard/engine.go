package main

import (
	"fmt"
	"net/http"

	"github.com/rsclarke/crawlguard/internal/config"
	"github.com/rsclarke/crawlguard/internal/dnscheck"
	"github.com/rsclarke/crawlguard/internal/identity"
	"github.com/rsclarke/crawlguard/internal/ranges"
	"github.com/rsclarke/crawlguard/internal/verifier"
	"go.uber.org/zap"
)

// buildEngine assembles the verification engine from configuration: the
// identity registry (plus optional overlay), the DNS resolver, and the
// range cache.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*verifier.Engine, error) {
	registry := identity.NewRegistry()
	if cfg.IdentityFile != "" {
		if err := registry.LoadOverlay(cfg.IdentityFile); err != nil {
			return nil, fmt.Errorf("load identity overlay: %w", err)
		}
	}

	var resolver dnscheck.Resolver
	if cfg.DNSServer != "" {
		resolver = dnscheck.NewClientResolver(cfg.DNSServer, cfg.DNSTimeout)
	} else {
		resolver = &dnscheck.SystemResolver{Timeout: cfg.DNSTimeout}
	}

	checker := dnscheck.NewChecker(resolver, logger.Named("dnscheck"))
	cache := ranges.NewCache(registry, &http.Client{Timeout: ranges.DefaultFetchTimeout}, cfg.RangeTTL, logger.Named("ranges"))

	return verifier.New(registry, checker, cache, logger.Named("verifier")), nil
}
