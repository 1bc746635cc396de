// Package ranges caches the network-prefix lists crawler operators publish
// and answers CIDR membership queries against them.
package ranges

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/rsclarke/crawlguard/internal/identity"
	"github.com/rsclarke/crawlguard/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched prefix list stays fresh.
	DefaultTTL = 4 * time.Hour

	// DefaultFetchTimeout bounds a single range-list download.
	DefaultFetchTimeout = 10 * time.Second

	maxResponseBytes = 10 << 20 // safety cap on range-list downloads
)

// State describes the lifecycle of a cache entry.
type State string

const (
	// StateAbsent means no fetch has ever succeeded for the identity.
	StateAbsent State = "absent"
	// StateFresh means the entry is within its TTL.
	StateFresh State = "fresh"
	// StateStale means the TTL has lapsed; the entry serves as last known
	// good until a refresh succeeds.
	StateStale State = "stale"
)

// prefixDocument mirrors the published JSON schema: a "prefixes" list whose
// elements carry either an ipv4Prefix or ipv6Prefix CIDR string. Extra
// fields are ignored.
type prefixDocument struct {
	Prefixes []prefixEntry `json:"prefixes"`
}

type prefixEntry struct {
	IPv4Prefix string `json:"ipv4Prefix"`
	IPv6Prefix string `json:"ipv6Prefix"`
}

type entry struct {
	prefixes  []netip.Prefix
	fetchedAt time.Time
}

// Cache holds per-identity network-prefix lists with TTL-based refresh.
// It never fails its callers: identities without a configured source, and
// fetch failures with no prior success, yield an empty list.
type Cache struct {
	registry *identity.Registry
	client   *http.Client
	ttl      time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[identity.Key]*entry

	group singleflight.Group

	now func() time.Time
}

// NewCache creates a Cache over the given registry. A nil client gets a
// default with the fetch timeout applied; a non-positive ttl gets DefaultTTL.
func NewCache(registry *identity.Registry, client *http.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		registry: registry,
		client:   client,
		ttl:      ttl,
		logger:   logger,
		entries:  make(map[identity.Key]*entry),
		now:      time.Now,
	}
}

// Ranges returns the freshest known prefix list for the identity, fetching
// from the configured sources when the cached entry is absent or past its
// TTL. A failed refresh serves the last good list; with no prior success the
// result is empty. Ranges never returns an error.
func (c *Cache) Ranges(ctx context.Context, key identity.Key) []netip.Prefix {
	profile := c.registry.Profile(key)
	if profile == nil || !profile.HasRangeSource() {
		return nil
	}

	c.mu.RLock()
	e := c.entries[key]
	if e != nil && c.now().Sub(e.fetchedAt) < c.ttl {
		prefixes := e.prefixes
		c.mu.RUnlock()
		return prefixes
	}
	c.mu.RUnlock()

	// Concurrent misses for the same identity collapse into one fetch.
	result, _, _ := c.group.Do(string(key), func() (any, error) {
		return c.refresh(ctx, key, profile), nil
	})
	prefixes, _ := result.([]netip.Prefix)
	return prefixes
}

// refresh fetches all configured sources and atomically replaces the cache
// entry when every one succeeds. It returns the list to serve, which is the
// previous entry when any source fails.
func (c *Cache) refresh(ctx context.Context, key identity.Key, profile *identity.Profile) []netip.Prefix {
	// A competing flight may have refreshed while we waited on the lock
	// inside singleflight; serve its result instead of fetching again.
	c.mu.RLock()
	e := c.entries[key]
	if e != nil && c.now().Sub(e.fetchedAt) < c.ttl {
		prefixes := e.prefixes
		c.mu.RUnlock()
		return prefixes
	}
	c.mu.RUnlock()

	// All sources must succeed. Storing a partial merge as fresh would
	// reject addresses from the failed source's list until the TTL lapses.
	var merged []netip.Prefix
	failed := false
	for _, source := range profile.RangeSources {
		prefixes, err := c.fetchSource(ctx, source)
		if err != nil {
			c.logger.Warn("range list fetch failed",
				logging.Identity(string(key)), logging.Source(source), zap.Error(err))
			failed = true
			break
		}
		merged = append(merged, prefixes...)
	}

	if failed {
		// Serve last known good; next call retries the fetch.
		c.mu.RLock()
		defer c.mu.RUnlock()
		if e := c.entries[key]; e != nil {
			return e.prefixes
		}
		return nil
	}

	c.mu.Lock()
	c.entries[key] = &entry{prefixes: merged, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Info("range list refreshed",
		logging.Identity(string(key)), logging.Prefixes(len(merged)))
	return merged
}

func (c *Cache) fetchSource(ctx context.Context, source string) ([]netip.Prefix, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var doc prefixDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	prefixes := make([]netip.Prefix, 0, len(doc.Prefixes))
	for _, pe := range doc.Prefixes {
		cidr := pe.IPv4Prefix
		if cidr == "" {
			cidr = pe.IPv6Prefix
		}
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			// Skip the single malformed entry, keep the rest.
			c.logger.Debug("skipping malformed prefix", logging.Source(source), zap.String("cidr", cidr))
			continue
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// Contains reports whether addr falls inside any of the identity's current
// network prefixes. A malformed address is logged and reported as outside.
func (c *Cache) Contains(ctx context.Context, addr string, key identity.Key) bool {
	source, err := netip.ParseAddr(addr)
	if err != nil {
		c.logger.Warn("unparseable address for range check", logging.Addr(addr), zap.Error(err))
		return false
	}
	source = source.Unmap()

	for _, prefix := range c.Ranges(ctx, key) {
		if prefix.Contains(source) {
			return true
		}
	}
	return false
}

// State reports the cache entry lifecycle state for an identity.
func (c *Cache) State(key identity.Key) State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entries[key]
	if e == nil {
		return StateAbsent
	}
	if c.now().Sub(e.fetchedAt) < c.ttl {
		return StateFresh
	}
	return StateStale
}
