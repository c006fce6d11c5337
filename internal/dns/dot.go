package dns

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DoT queries a DNS-over-TLS server.
type DoT struct {
	Server     string
	ServerName string
	// Net is "tcp-tls" in production; tests use plain "tcp".
	Net     string
	Timeout time.Duration
}

func NewDoT() *DoT {
	return &DoT{
		Server:     "dns.cloudflare.com:853",
		ServerName: "dns.cloudflare.com",
		Net:        "tcp-tls",
		Timeout:    5 * time.Second,
	}
}

func (d *DoT) LookupAAAA(ctx context.Context, host string) (net.IP, error) {
	c := new(dns.Client)
	c.Net = d.Net
	c.Timeout = d.Timeout
	if d.Net == "tcp-tls" {
		c.TLSConfig = &tls.Config{
			ServerName: d.ServerName,
		}
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeAAAA)
	m.RecursionDesired = true

	r, _, err := c.ExchangeContext(ctx, m, d.Server)
	if err != nil {
		return nil, err
	}

	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("DNS query failed: %v", dns.RcodeToString[r.Rcode])
	}

	for _, answer := range r.Answer {
		if aaaa, ok := answer.(*dns.AAAA); ok {
			return aaaa.AAAA, nil
		}
	}

	return nil, fmt.Errorf("no AAAA record found for %s", host)
}
