// Package config holds runtime settings shared by the server and the
// one-shot verify command.
package config

import (
	"time"

	"github.com/rsclarke/crawlguard/internal/dnscheck"
	"github.com/rsclarke/crawlguard/internal/ranges"
)

// Config collects the tunables of the verification engine and its host.
type Config struct {
	DBPath      string
	APIPort     int
	TLSCertFile string
	TLSKeyFile  string

	// RangeTTL is how long fetched prefix lists stay fresh.
	RangeTTL time.Duration
	// DNSTimeout bounds each individual DNS lookup.
	DNSTimeout time.Duration
	// DNSServer is an optional upstream resolver in host:port form. Empty
	// means the system resolver.
	DNSServer string
	// IdentityFile is an optional YAML overlay extending the built-in
	// crawler registry.
	IdentityFile string
	// RequireBoth applies the strict combination policy by default.
	RequireBoth bool
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		DBPath:     "crawlguard.db",
		APIPort:    8081,
		RangeTTL:   ranges.DefaultTTL,
		DNSTimeout: dnscheck.DefaultTimeout,
	}
}
