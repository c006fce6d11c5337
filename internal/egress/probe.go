package egress

import (
	"context"
	"net"
	"time"
)

// DefaultProbeTarget is a public resolver that is always routable.
const DefaultProbeTarget = "[2001:4860:4860::8888]:53"

// Prober checks that a local address can originate traffic.
type Prober interface {
	Probe(ctx context.Context, addr net.IP) error
}

// UDPProbe binds a datagram socket to the candidate and connects it to
// Target. Connecting a UDP socket sends nothing; success only proves the
// kernel has a route from that source.
type UDPProbe struct {
	Target  string
	Timeout time.Duration
}

func (p UDPProbe) Probe(ctx context.Context, addr net.IP) error {
	target := p.Target
	if target == "" {
		target = DefaultProbeTarget
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{LocalAddr: &net.UDPAddr{IP: addr}}
	conn, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return err
	}
	return conn.Close()
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, addr net.IP) error

func (f ProbeFunc) Probe(ctx context.Context, addr net.IP) error {
	return f(ctx, addr)
}
