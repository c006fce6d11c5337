// Package egress decides, per request, which network identity an outbound
// fetch leaves through: a freshly bound local IPv6 address, an upstream
// proxy, or the system default route.
package egress

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Kind enumerates egress identities.
type Kind int

const (
	SystemDefault Kind = iota
	LocalAddress
	UpstreamProxy
)

func (k Kind) String() string {
	switch k {
	case LocalAddress:
		return "local"
	case UpstreamProxy:
		return "proxy"
	default:
		return "default"
	}
}

// Identity is the egress chosen for a single request. Only the fields
// matching Kind are set.
type Identity struct {
	Kind    Kind
	Address net.IP
	Proxy   *url.URL
}

// Default is the SystemDefault identity.
func Default() Identity {
	return Identity{Kind: SystemDefault}
}

func (id Identity) String() string {
	switch id.Kind {
	case LocalAddress:
		return "local:" + id.Address.String()
	case UpstreamProxy:
		return "proxy:" + id.Proxy.Redacted()
	default:
		return "default"
	}
}

// Scheme returns the upstream proxy scheme, or "" for other kinds.
func (id Identity) Scheme() string {
	if id.Kind != UpstreamProxy || id.Proxy == nil {
		return ""
	}
	return id.Proxy.Scheme
}

// IsSOCKS reports whether the upstream proxy speaks SOCKS.
func (id Identity) IsSOCKS() bool {
	return strings.HasPrefix(id.Scheme(), "socks")
}

var proxySchemes = map[string]string{
	"http":   "http",
	"https":  "https",
	"socks":  "socks5",
	"socks5": "socks5",
	// socks5h resolves names on the proxy side.
	"socks5h": "socks5h",
}

// ParseProxy validates an upstream proxy URL. Supported schemes are http,
// https, socks5 and socks5h ("socks" is read as socks5).
func ParseProxy(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("empty proxy url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("parse proxy url: %w", err)
	}
	scheme, ok := proxySchemes[strings.ToLower(u.Scheme)]
	if !ok {
		return Identity{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Identity{}, fmt.Errorf("proxy url %q has no host", u.Redacted())
	}
	u.Scheme = scheme
	return Identity{Kind: UpstreamProxy, Proxy: u}, nil
}
