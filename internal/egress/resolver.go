package egress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"

	"github.com/qza666/v6relay/internal/addrgen"
	"github.com/qza666/v6relay/internal/logging"
	"github.com/qza666/v6relay/internal/sysutils"
)

// Request carries the per-request inputs to egress resolution.
type Request struct {
	// ExplicitProxy is the caller's proxy query parameter.
	ExplicitProxy string
}

// Strategy produces an identity or reports that it does not apply. A
// non-nil error aborts resolution.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (Identity, bool, error)
}

// Resolver tries strategies in order and returns the first usable
// identity, or SystemDefault when none applies.
type Resolver struct {
	strategies []Strategy
	log        *slog.Logger
}

func NewResolver(log *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, log: logging.OrDiscard(log)}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (Identity, error) {
	for _, s := range r.strategies {
		id, ok, err := s.Resolve(ctx, req)
		if err != nil {
			return Identity{}, err
		}
		if ok {
			r.log.Debug("egress resolved", "strategy", s.Name(), "egress", id.String())
			return id, nil
		}
	}
	return Default(), nil
}

// ExplicitProxy uses the caller-supplied proxy URL.
type ExplicitProxy struct {
	Log *slog.Logger
}

func (ExplicitProxy) Name() string { return "explicit-proxy" }

func (s ExplicitProxy) Resolve(_ context.Context, req Request) (Identity, bool, error) {
	if req.ExplicitProxy == "" {
		return Identity{}, false, nil
	}
	id, err := ParseProxy(req.ExplicitProxy)
	if err != nil {
		logging.OrDiscard(s.Log).Debug("ignoring caller proxy", "err", err)
		return Identity{}, false, nil
	}
	return id, true, nil
}

// ProxyPool picks one configured upstream proxy uniformly at random. It does
// not apply when the caller named a proxy, even an unusable one.
type ProxyPool struct {
	Proxies []string
	Log     *slog.Logger
}

func (ProxyPool) Name() string { return "proxy-pool" }

func (s ProxyPool) Resolve(_ context.Context, req Request) (Identity, bool, error) {
	if len(s.Proxies) == 0 || req.ExplicitProxy != "" {
		return Identity{}, false, nil
	}
	raw := s.Proxies[rand.IntN(len(s.Proxies))]
	id, err := ParseProxy(raw)
	if err != nil {
		logging.OrDiscard(s.Log).Debug("ignoring configured proxy", "err", err)
		return Identity{}, false, nil
	}
	return id, true, nil
}

// LocalStrategy binds a freshly generated address and probes it.
type LocalStrategy struct {
	Manager   *sysutils.Manager
	Generator *addrgen.Generator
	Prober    Prober
	Log       *slog.Logger
}

func (LocalStrategy) Name() string { return "local-address" }

func (s LocalStrategy) Resolve(ctx context.Context, _ Request) (Identity, bool, error) {
	log := logging.OrDiscard(s.Log)
	if s.Manager == nil || s.Generator == nil || len(s.Generator.Prefix) == 0 {
		return Identity{}, false, nil
	}

	if err := s.Manager.Verify(ctx); err != nil {
		if errors.Is(err, sysutils.ErrUnsupported) {
			log.Debug("interface management unsupported, using system default")
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}

	addr, ok := s.Generator.Next()
	if !ok {
		log.Debug("prefix leaves no host bits, using system default")
		return Identity{}, false, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil || !s.Generator.Contains(addr) {
		return Identity{}, false, fmt.Errorf("generated address %q outside the configured prefix", addr)
	}

	if err := s.Manager.Assign(ctx, addr); err != nil {
		return Identity{}, false, err
	}

	prober := s.Prober
	if prober == nil {
		prober = UDPProbe{}
	}
	if err := prober.Probe(ctx, ip); err != nil {
		log.Debug("probe failed, using system default", "addr", addr, "err", err)
		return Identity{}, false, nil
	}
	return Identity{Kind: LocalAddress, Address: ip}, true, nil
}

// Standard returns the strategy order used by the relay: caller proxy,
// configured proxies, then a local address.
func Standard(log *slog.Logger, proxies []string, local LocalStrategy) []Strategy {
	return []Strategy{
		ExplicitProxy{Log: log},
		ProxyPool{Proxies: proxies, Log: log},
		local,
	}
}
