// Package safety implements the URL Safety Gate: every outbound fetch must
// pass validate() before any socket is opened.
package safety

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/fetchkit/browsecore/models"
)

// Resolver abstracts DNS resolution so tests can inject a mock resolver
// without opening real sockets.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Gate validates URLs before any fetcher is allowed to touch them.
type Gate struct {
	resolver Resolver
}

// New builds a Gate using net.DefaultResolver.
func New() *Gate {
	return &Gate{resolver: net.DefaultResolver}
}

// NewWithResolver builds a Gate using a caller-supplied resolver, for tests.
func NewWithResolver(r Resolver) *Gate {
	return &Gate{resolver: r}
}

// cgnatBlock is 100.64.0.0/10 (carrier-grade NAT), not covered by net.IP's
// built-in private-range helpers.
var _, cgnatBlock, _ = net.ParseCIDR("100.64.0.0/10")

// Validate resolves host and rejects the URL if the scheme is not http(s)
// or any resolved address is loopback, link-local, multicast, private, or
// carrier-grade NAT. No outbound HTTP is ever attempted before this passes.
func (g *Gate) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "unparseable URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, fmt.Sprintf("scheme %q is not http/https", u.Scheme), nil)
	}
	host := u.Hostname()
	if host == "" {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "URL has no host", nil)
	}

	if ip := net.ParseIP(host); ip != nil {
		if blocked(ip) {
			return nil, models.NewCoreError(models.ErrCodeSSRFBlocked, "literal IP resolves to a blocked range", nil)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "DNS resolution failed", err)
	}
	if len(addrs) == 0 {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "DNS resolution returned no addresses", nil)
	}
	for _, a := range addrs {
		if blocked(a.IP) {
			return nil, models.NewCoreError(models.ErrCodeSSRFBlocked, fmt.Sprintf("%s resolves to a blocked address %s", host, a.IP), nil)
		}
	}
	return u, nil
}

// Domain returns the registrable host: lowercase, leading "www." stripped.
func Domain(u *url.URL) string {
	h := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(h, "www.")
}

func blocked(ip net.IP) bool {
	switch {
	case ip.IsLoopback():
		return true
	case ip.IsLinkLocalUnicast():
		return true
	case ip.IsLinkLocalMulticast():
		return true
	case ip.IsMulticast():
		return true
	case ip.IsUnspecified():
		return true
	case ip.IsPrivate():
		return true
	case cgnatBlock.Contains(ip):
		return true
	}
	return false
}
