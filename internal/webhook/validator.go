package webhook

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Target URL rejections.
var (
	ErrInvalidURL    = errors.New("target must be an absolute URL with a host")
	ErrInvalidScheme = errors.New("target must use https")
	ErrInvalidPort   = errors.New("target must use port 443")
	ErrPrivateTarget = errors.New("target must not resolve to a private or loopback address")
)

// TargetPolicy decides which URLs may receive deliveries.
type TargetPolicy struct {
	// AllowInsecure permits plain http and private hosts on any port. It is
	// meant for local development only.
	AllowInsecure bool
	// Lookup resolves host names. Defaults to net.DefaultResolver.
	Lookup func(ctx context.Context, host string) ([]netip.Addr, error)
}

// Check validates rawURL. Hosts that fail to resolve are accepted here and
// fail at delivery time instead.
func (p TargetPolicy) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "https" && !(p.AllowInsecure && u.Scheme == "http") {
		return ErrInvalidScheme
	}
	if p.AllowInsecure {
		return nil
	}
	if port := u.Port(); port != "" && port != "443" {
		return ErrInvalidPort
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return ErrPrivateTarget
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if !routable(addr) {
			return ErrPrivateTarget
		}
		return nil
	}

	lookup := p.Lookup
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if !routable(addr) {
			return ErrPrivateTarget
		}
	}
	return nil
}

// routable reports whether addr is a public unicast address.
func routable(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate() && !cgnat.Contains(addr)
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// ExtractHost returns the host of targetURL for logging. Paths and queries
// may carry secrets and are never logged.
func ExtractHost(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
