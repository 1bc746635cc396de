package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rsclarke/crawlguard/internal/dnscheck"
	"github.com/rsclarke/crawlguard/internal/identity"
	"github.com/rsclarke/crawlguard/internal/ranges"
	"go.uber.org/zap"
)

const (
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	bingbotUA   = "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)"
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/121.0.0.0 Safari/537.36"
)

type staticResolver struct {
	ptr   map[string][]string
	hosts map[string][]string
}

func (s *staticResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if names, ok := s.ptr[addr]; ok {
		return names, nil
	}
	return nil, errors.New("no PTR record")
}

func (s *staticResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addrs, ok := s.hosts[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no A/AAAA records")
}

// newTestEngine builds an engine whose googlebot ranges come from a local
// server and whose DNS answers come from the given static resolver.
func newTestEngine(t *testing.T, resolver dnscheck.Resolver, rangesDoc string) *Engine {
	t.Helper()

	registry := identity.NewRegistry()
	if rangesDoc == "" {
		registry.Profile(identity.Googlebot).RangeSources = nil
	} else {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(rangesDoc))
		}))
		t.Cleanup(srv.Close)
		registry.Profile(identity.Googlebot).RangeSources = []string{srv.URL}
	}

	checker := dnscheck.NewChecker(resolver, zap.NewNop())
	cache := ranges.NewCache(registry, nil, 0, zap.NewNop())
	return New(registry, checker, cache, zap.NewNop())
}

const googleRanges = `{"prefixes": [{"ipv4Prefix": "66.249.64.0/19"}]}`

func TestVerifyUnrecognizedUserAgent(t *testing.T) {
	e := newTestEngine(t, &staticResolver{}, googleRanges)

	for _, addr := range []string{"66.249.66.1", "5.9.0.1", "not-an-ip"} {
		result := e.Verify(context.Background(), Request{Addr: addr, UserAgent: chromeUA})
		if result.Legitimate {
			t.Errorf("addr %s: Legitimate = true for unrecognized UA", addr)
		}
		if result.Reason != ReasonUnknownIdentity {
			t.Errorf("addr %s: Reason = %q, want %q", addr, result.Reason, ReasonUnknownIdentity)
		}
		if result.Identity != identity.None {
			t.Errorf("addr %s: Identity = %q, want none", addr, result.Identity)
		}
	}
}

func TestVerifyBothChecksPass(t *testing.T) {
	resolver := &staticResolver{
		ptr:   map[string][]string{"66.249.66.1": {"crawl-66-249-66-1.googlebot.com"}},
		hosts: map[string][]string{"crawl-66-249-66-1.googlebot.com": {"66.249.66.1"}},
	}
	e := newTestEngine(t, resolver, googleRanges)

	result := e.Verify(context.Background(), Request{Addr: "66.249.66.1", UserAgent: googlebotUA, RequireBoth: true})
	if !result.Legitimate {
		t.Error("Legitimate = false, want true")
	}
	if result.Reason != ReasonBothVerified {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonBothVerified)
	}
	if !result.DNSVerified || !result.RangeVerified {
		t.Errorf("sub-checks = (%v, %v), want both true", result.DNSVerified, result.RangeVerified)
	}
	if result.Hostname != "crawl-66-249-66-1.googlebot.com" {
		t.Errorf("Hostname = %q", result.Hostname)
	}
}

func TestVerifyRequireBothRejectsSingleSignal(t *testing.T) {
	// Address is inside the published range but DNS does not confirm it.
	e := newTestEngine(t, &staticResolver{}, googleRanges)

	result := e.Verify(context.Background(), Request{Addr: "66.249.66.1", UserAgent: googlebotUA, RequireBoth: true})
	if result.Legitimate {
		t.Error("Legitimate = true with only the range check passing under strict policy")
	}
	if result.Reason != ReasonStrictFailed {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonStrictFailed)
	}
	if !result.RangeVerified {
		t.Error("RangeVerified = false, want true")
	}
}

func TestVerifyRequireBothRangelessIdentity(t *testing.T) {
	resolver := &staticResolver{
		ptr:   map[string][]string{"157.55.39.1": {"msnbot-157-55-39-1.search.msn.com"}},
		hosts: map[string][]string{"msnbot-157-55-39-1.search.msn.com": {"157.55.39.1"}},
	}
	e := newTestEngine(t, resolver, googleRanges)

	// Bingbot publishes no ranges; strict policy falls back to DNS alone.
	result := e.Verify(context.Background(), Request{Addr: "157.55.39.1", UserAgent: bingbotUA, RequireBoth: true})
	if !result.Legitimate {
		t.Error("Legitimate = false, want true for DNS-confirmed rangeless identity")
	}
	if result.Reason != ReasonDNSNoRanges {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonDNSNoRanges)
	}

	// And a DNS failure is terminal for such an identity.
	result = e.Verify(context.Background(), Request{Addr: "5.9.0.1", UserAgent: bingbotUA, RequireBoth: true})
	if result.Legitimate {
		t.Error("Legitimate = true, want false")
	}
	if result.Reason != ReasonDNSFailed {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonDNSFailed)
	}
}

func TestVerifyDefaultPolicyRangeOnly(t *testing.T) {
	// Reverse lookup returns nothing, but the address is inside the
	// published range; the permissive default accepts it.
	e := newTestEngine(t, &staticResolver{}, googleRanges)

	result := e.Verify(context.Background(), Request{Addr: "66.249.66.1", UserAgent: googlebotUA})
	if !result.Legitimate {
		t.Error("Legitimate = false, want true under default policy")
	}
	if result.Reason != ReasonRangeVerified {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonRangeVerified)
	}
	if result.DNSVerified {
		t.Error("DNSVerified = true, want false")
	}
}

func TestVerifyDefaultPolicyDNSOnly(t *testing.T) {
	resolver := &staticResolver{
		ptr:   map[string][]string{"209.85.238.5": {"rate-limited-proxy-209-85-238-5.google.com"}},
		hosts: map[string][]string{"rate-limited-proxy-209-85-238-5.google.com": {"209.85.238.5"}},
	}
	e := newTestEngine(t, resolver, googleRanges)

	result := e.Verify(context.Background(), Request{Addr: "209.85.238.5", UserAgent: googlebotUA})
	if !result.Legitimate {
		t.Error("Legitimate = false, want true")
	}
	if result.Reason != ReasonDNSVerified {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonDNSVerified)
	}
}

func TestVerifySpoofedCrawler(t *testing.T) {
	e := newTestEngine(t, &staticResolver{
		ptr: map[string][]string{"5.9.0.1": {"static.5.9.0.1.clients.your-server.de"}},
	}, googleRanges)

	result := e.Verify(context.Background(), Request{Addr: "5.9.0.1", UserAgent: googlebotUA})
	if result.Legitimate {
		t.Error("Legitimate = true for spoofed crawler")
	}
	if result.Reason != ReasonNotVerified {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonNotVerified)
	}
	if result.Hostname != "static.5.9.0.1.clients.your-server.de" {
		t.Errorf("Hostname = %q, want the actual reverse name for diagnostics", result.Hostname)
	}
}

func TestVerifyCanceledContextFailsClosed(t *testing.T) {
	resolver := &staticResolver{
		ptr:   map[string][]string{"66.249.66.1": {"crawl-66-249-66-1.googlebot.com"}},
		hosts: map[string][]string{"crawl-66-249-66-1.googlebot.com": {"66.249.66.1"}},
	}
	e := newTestEngine(t, resolver, googleRanges)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Verify(ctx, Request{Addr: "66.249.66.1", UserAgent: googlebotUA})
	if result.Legitimate {
		t.Error("Legitimate = true on canceled context, want fail closed")
	}
	if result.Reason != ReasonCanceled {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonCanceled)
	}
}

func TestVerifyConcurrent(t *testing.T) {
	resolver := &staticResolver{
		ptr: map[string][]string{
			"66.249.66.1": {"crawl-66-249-66-1.googlebot.com"},
			"157.55.39.1": {"msnbot-157-55-39-1.search.msn.com"},
		},
		hosts: map[string][]string{
			"crawl-66-249-66-1.googlebot.com":   {"66.249.66.1"},
			"msnbot-157-55-39-1.search.msn.com": {"157.55.39.1"},
		},
	}
	e := newTestEngine(t, resolver, googleRanges)

	requests := []struct {
		req        Request
		legitimate bool
	}{
		{Request{Addr: "66.249.66.1", UserAgent: googlebotUA}, true},
		{Request{Addr: "157.55.39.1", UserAgent: bingbotUA}, true},
		{Request{Addr: "5.9.0.1", UserAgent: googlebotUA}, false},
		{Request{Addr: "5.9.0.1", UserAgent: chromeUA}, false},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		for _, tc := range requests {
			wg.Add(1)
			go func(req Request, want bool) {
				defer wg.Done()
				result := e.Verify(context.Background(), req)
				if result.Legitimate != want {
					t.Errorf("Verify(%s, %.20s) = %v, want %v", req.Addr, req.UserAgent, result.Legitimate, want)
				}
			}(tc.req, tc.legitimate)
		}
	}
	wg.Wait()
}

func TestCombine(t *testing.T) {
	tests := []struct {
		hasRanges   bool
		dnsOK       bool
		rangeOK     bool
		requireBoth bool
		verdict     bool
		reason      string
	}{
		{true, true, true, false, true, ReasonBothVerified},
		{true, true, false, false, true, ReasonDNSVerified},
		{true, false, true, false, true, ReasonRangeVerified},
		{true, false, false, false, false, ReasonNotVerified},
		{true, true, true, true, true, ReasonBothVerified},
		{true, true, false, true, false, ReasonStrictFailed},
		{true, false, true, true, false, ReasonStrictFailed},
		{true, false, false, true, false, ReasonStrictFailed},
		{false, true, false, true, true, ReasonDNSNoRanges},
		{false, false, false, true, false, ReasonDNSFailed},
		{false, true, false, false, true, ReasonDNSVerified},
		{false, false, false, false, false, ReasonNotVerified},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("ranges=%v dns=%v range=%v strict=%v", tt.hasRanges, tt.dnsOK, tt.rangeOK, tt.requireBoth)
		t.Run(name, func(t *testing.T) {
			verdict, reason := combine(tt.hasRanges, tt.dnsOK, tt.rangeOK, tt.requireBoth)
			if verdict != tt.verdict || reason != tt.reason {
				t.Errorf("combine = (%v, %q), want (%v, %q)", verdict, reason, tt.verdict, tt.reason)
			}
		})
	}
}
