// Package netguard blocks outbound requests to loopback, private, link-local
// and other internal address ranges.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrBlocked is returned when a URL targets a disallowed address.
var ErrBlocked = errors.New("destination address not allowed")

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

var blockedHostSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".intranet",
	".lan",
	".home.arpa",
}

// Guard validates URLs before they are fetched.
type Guard struct {
	resolver Resolver
}

// New builds a Guard. A nil resolver uses net.DefaultResolver.
func New(resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver}
}

// Check returns nil when rawURL is an http(s) URL whose host resolves only to
// public addresses. Blocked destinations wrap ErrBlocked.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparsable url", ErrBlocked)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlocked, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrBlocked)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrBlocked)
	}
	if blockedHostname(host) {
		return fmt.Errorf("%w: host %s", ErrBlocked, host)
	}
	if addr, parseErr := netip.ParseAddr(host); parseErr == nil {
		if !Allowed(addr) {
			return fmt.Errorf("%w: address %s", ErrBlocked, addr)
		}
		return nil
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, ipAddr := range addrs {
		addr, ok := netip.AddrFromSlice(ipAddr.IP)
		if !ok || !Allowed(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlocked, host, ipAddr.IP)
		}
	}
	return nil
}

// DialContext wraps dial so connections are only opened to allowed
// addresses, closing the gap between Check and connect.
func (g *Guard) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("split host port: %w", err)
		}
		ips, err := g.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		for _, ipAddr := range ips {
			addr, ok := netip.AddrFromSlice(ipAddr.IP)
			if !ok || !Allowed(addr) {
				continue
			}
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(addr.Unmap().String(), port))
			if dialErr != nil {
				err = dialErr
				continue
			}
			return conn, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", host, err)
		}
		return nil, fmt.Errorf("%w: %s has no public address", ErrBlocked, host)
	}
}

// Allowed reports whether addr is a publicly routable unicast address.
func Allowed(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() {
		return false
	}
	if addr.Is4() && addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return false
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}

func blockedHostname(host string) bool {
	if host == "localhost" || host == "metadata" || host == "metadata.google.internal" {
		return true
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
