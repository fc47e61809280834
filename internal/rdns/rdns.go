// Package rdns performs reverse DNS resolution for the client hostname
// shown in the banner and logged per connection, using miekg/dns's
// low-level PTR-query API.
package rdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver resolves an IP to its reverse-DNS hostnames. Failure is
// non-fatal at the call site: callers fall back to "[<ip>]".
type Resolver interface {
	Reverse(ctx context.Context, ip string) ([]string, error)
}

// Client is a Resolver backed by a configured recursive nameserver. If
// Server is empty, the system resolver (net.DefaultResolver) is used
// instead — useful in tests and on hosts without a local unbound/bind.
type Client struct {
	// Server is a "host:port" nameserver to query directly via
	// miekg/dns. Empty means "use net.DefaultResolver".
	Server  string
	Timeout time.Duration
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Second
}

func (c *Client) Reverse(ctx context.Context, ip string) ([]string, error) {
	if c.Server == "" {
		ctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()
		return net.DefaultResolver.LookupAddr(ctx, ip)
	}
	return c.reverseViaServer(ctx, ip)
}

func (c *Client) reverseViaServer(ctx context.Context, ip string) ([]string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("rdns: %w", err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: c.timeout()}
	in, _, err := client.ExchangeContext(ctx, msg, c.Server)
	if err != nil {
		return nil, fmt.Errorf("rdns: %w", err)
	}

	var names []string
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("rdns: no PTR records for %s", ip)
	}
	return names, nil
}
