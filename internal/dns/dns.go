// Package dns resolves AAAA records for targets reached from a bound IPv6
// source address.
package dns

import (
	"context"
	"fmt"
	"net"
)

// Resolver returns an IPv6 address for host.
type Resolver interface {
	LookupAAAA(ctx context.Context, host string) (net.IP, error)
}

// New returns the resolver named by kind: "system", "dot" or "doh". An empty
// kind yields nil, meaning the dialer resolves on its own.
func New(kind string) (Resolver, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "system":
		return System{}, nil
	case "dot":
		return NewDoT(), nil
	case "doh":
		return NewDoH(), nil
	default:
		return nil, fmt.Errorf("unknown resolver %q", kind)
	}
}

// System uses the host resolver restricted to IPv6.
type System struct{}

func (System) LookupAAAA(ctx context.Context, host string) (net.IP, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip6", host)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if ip.To4() == nil {
			return ip, nil
		}
	}

	return nil, fmt.Errorf("no IPv6 address found for %s", host)
}
