package dnscheck

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout bounds a single DNS lookup. Lookups that exceed it are
// treated as resolution failures, never surfaced as errors.
const DefaultTimeout = 3 * time.Second

// Resolver performs the reverse and forward lookups the checker needs.
type Resolver interface {
	// LookupAddr resolves an IP address to its PTR hostnames.
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	// LookupHost resolves a hostname to its A and AAAA addresses.
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SystemResolver resolves through the operating system resolver with a
// bounded timeout per lookup.
type SystemResolver struct {
	Timeout time.Duration
}

func (r *SystemResolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// LookupAddr resolves an address to its PTR hostnames.
func (r *SystemResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = strings.TrimSuffix(name, ".")
	}
	return names, nil
}

// LookupHost resolves a hostname to its A and AAAA addresses.
func (r *SystemResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return net.DefaultResolver.LookupHost(ctx, host)
}

// ClientResolver resolves against a specific upstream DNS server using
// direct queries rather than the system resolver.
type ClientResolver struct {
	// Server is the upstream resolver address in host:port form.
	Server  string
	Timeout time.Duration

	client *dns.Client
}

// NewClientResolver creates a resolver that queries the given upstream
// server ("host:port") over UDP.
func NewClientResolver(server string, timeout time.Duration) *ClientResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ClientResolver{
		Server:  server,
		Timeout: timeout,
		client: &dns.Client{
			Timeout: timeout,
		},
	}
}

func (r *ClientResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns query %s %s: rcode %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
	return resp, nil
}

// LookupAddr resolves an address to its PTR hostnames.
func (r *ClientResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("reverse name for %s: %w", addr, err)
	}

	resp, err := r.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no PTR records for %s", addr)
	}
	return names, nil
}

// LookupHost resolves a hostname to its A and AAAA addresses. A failure in
// one address family is tolerated as long as the other returns records.
func (r *ClientResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	fqdn := dns.Fqdn(host)

	var addrs []string
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := r.exchange(ctx, fqdn, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range resp.Answer {
			switch record := rr.(type) {
			case *dns.A:
				addrs = append(addrs, record.A.String())
			case *dns.AAAA:
				addrs = append(addrs, record.AAAA.String())
			}
		}
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return addrs, nil
}
