// Package agent builds the outbound transports for an egress identity.
package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/qza666/v6relay/internal/dns"
	"github.com/qza666/v6relay/internal/egress"
)

// DialFunc dials a raw connection, as used for CONNECT tunnels.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options tune the transports built by New.
type Options struct {
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	// DisableKeepAlives stops per-request transports from pooling
	// connections that nobody will reuse.
	DisableKeepAlives bool
	// Resolver, when set, resolves targets to AAAA records before dialing
	// from a local IPv6 address.
	Resolver dns.Resolver
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.TLSHandshakeTimeout <= 0 {
		o.TLSHandshakeTimeout = 10 * time.Second
	}
	return o
}

// Agent is the transport pair for one request. Plain carries http:// targets
// and Secure carries https:// targets. Both are nil for SystemDefault.
type Agent struct {
	Identity egress.Identity
	Plain    *http.Transport
	Secure   *http.Transport
	// Dial is nil for HTTP upstream proxies, which tunnel with CONNECT.
	Dial DialFunc
}

// New builds the agent for id.
func New(id egress.Identity, opts Options) (*Agent, error) {
	opts = opts.withDefaults()
	base := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: opts.KeepAlive,
	}

	switch id.Kind {
	case egress.UpstreamProxy:
		if id.Proxy == nil {
			return nil, fmt.Errorf("upstream proxy identity without url")
		}
		if id.IsSOCKS() {
			d, err := proxy.FromURL(id.Proxy, base)
			if err != nil {
				return nil, fmt.Errorf("create SOCKS dialer: %w", err)
			}
			dial := contextDial(d)
			shared := newTransport(opts, dial)
			return &Agent{Identity: id, Plain: shared, Secure: shared, Dial: dial}, nil
		}

		plain := newTransport(opts, base.DialContext)
		plain.Proxy = http.ProxyURL(id.Proxy)
		secure := newTransport(opts, base.DialContext)
		secure.Proxy = http.ProxyURL(id.Proxy)
		return &Agent{Identity: id, Plain: plain, Secure: secure}, nil

	case egress.LocalAddress:
		base.LocalAddr = &net.TCPAddr{IP: id.Address, Port: 0}
		dial := resolvingDial(base.DialContext, opts.Resolver)
		return &Agent{
			Identity: id,
			Plain:    newTransport(opts, dial),
			Secure:   newTransport(opts, dial),
			Dial:     dial,
		}, nil

	default:
		return &Agent{Identity: id, Dial: base.DialContext}, nil
	}
}

func newTransport(opts Options, dial DialFunc) *http.Transport {
	return &http.Transport{
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		DisableKeepAlives:     opts.DisableKeepAlives,
		// Bodies are relayed byte for byte.
		DisableCompression: true,
	}
}

// NewDefaultTransport is the shared transport used for SystemDefault.
func NewDefaultTransport(opts Options) *http.Transport {
	opts = opts.withDefaults()
	d := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlive}
	t := newTransport(opts, d.DialContext)
	t.MaxIdleConns = 500
	t.MaxIdleConnsPerHost = 50
	t.DisableKeepAlives = false
	t.Proxy = nil
	return t
}

func contextDial(d proxy.Dialer) DialFunc {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

func resolvingDial(dial DialFunc, r dns.Resolver) DialFunc {
	if r == nil {
		return dial
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) == nil {
			ip, err := r.LookupAAAA(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", host, err)
			}
			addr = net.JoinHostPort(ip.String(), port)
		}
		return dial(ctx, network, addr)
	}
}

// RoundTripper dispatches on the request scheme. fallback serves every
// request when the agent has no transports of its own.
func (a *Agent) RoundTripper(fallback http.RoundTripper) http.RoundTripper {
	if fallback == nil {
		fallback = http.DefaultTransport
	}
	return roundTripper{agent: a, fallback: fallback}
}

type roundTripper struct {
	agent    *Agent
	fallback http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t := rt.agent.Plain
	if req.URL.Scheme == "https" {
		t = rt.agent.Secure
	}
	if t == nil {
		return rt.fallback.RoundTrip(req)
	}
	return t.RoundTrip(req)
}

// Close releases idle connections held by the per-request transports.
func (a *Agent) Close() {
	if a.Plain != nil {
		a.Plain.CloseIdleConnections()
	}
	if a.Secure != nil && a.Secure != a.Plain {
		a.Secure.CloseIdleConnections()
	}
}
