package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"
)

// ReverseResolver performs PTR lookups against the system resolver or, when
// a server is configured, directly against that server over UDP.
type ReverseResolver struct {
	timeout time.Duration
	lookup  func(ctx context.Context, addr string) ([]string, error)
}

// NewReverseResolver creates a resolver. An empty dnsServer uses the system
// resolver; otherwise dnsServer is "host" or "host:port" (port 53 by default).
func NewReverseResolver(dnsServer string, timeout time.Duration) *ReverseResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	resolver := net.DefaultResolver
	if dnsServer != "" {
		server := dnsServer
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: timeout}
				return d.DialContext(ctx, "udp", server)
			},
		}
	}

	return &ReverseResolver{
		timeout: timeout,
		lookup:  resolver.LookupAddr,
	}
}

// ErrNoPTR means the lookup succeeded but returned no usable name
var ErrNoPTR = errors.New("no PTR record")

// Lookup returns the first PTR name for addr without the trailing dot
func (r *ReverseResolver) Lookup(ctx context.Context, addr netip.Addr) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.lookup(ctx, addr.String())
	if err != nil {
		return "", fmt.Errorf("reverse lookup %s: %w", addr, err)
	}
	for _, name := range names {
		if hostname := strings.TrimSuffix(name, "."); hostname != "" {
			return hostname, nil
		}
	}
	return "", ErrNoPTR
}
