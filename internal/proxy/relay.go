// Package proxy serves the relay endpoint and the classic forward proxy.
//
// Both share the same per-request pipeline: authenticate, resolve an
// egress identity, build transports for it and rewrite headers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qza666/v6relay/internal/agent"
	"github.com/qza666/v6relay/internal/auth"
	"github.com/qza666/v6relay/internal/config"
	"github.com/qza666/v6relay/internal/egress"
	relayerr "github.com/qza666/v6relay/internal/errors"
	"github.com/qza666/v6relay/internal/headers"
	"github.com/qza666/v6relay/internal/logging"
	"github.com/qza666/v6relay/internal/metrics"
	"github.com/qza666/v6relay/internal/sysutils"
)

// Deps are the collaborators shared by the relay and the forward proxy.
type Deps struct {
	Auth   *auth.Authenticator
	Egress *egress.Resolver
	// Interface is nil when no egress interface is configured.
	Interface *sysutils.Manager
	Agent     agent.Options
	// Fallback carries SystemDefault traffic.
	Fallback http.RoundTripper
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Auth == nil {
		d.Auth = auth.New("", false)
	}
	if d.Egress == nil {
		d.Egress = egress.NewResolver(d.Log)
	}
	if d.Fallback == nil {
		d.Fallback = agent.NewDefaultTransport(d.Agent)
	}
	d.Log = logging.OrDiscard(d.Log)
	return d
}

type state int

const (
	stateAuthenticating state = iota
	stateResolvingEgress
	stateBuildingTransport
	stateForwarding
	stateResponding
	stateCompleted
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateAuthenticating:
		return "authenticating"
	case stateResolvingEgress:
		return "resolving_egress"
	case stateBuildingTransport:
		return "building_transport"
	case stateForwarding:
		return "forwarding"
	case stateResponding:
		return "responding"
	case stateCompleted:
		return "completed"
	default:
		return "aborted"
	}
}

// Relay fetches the url query parameter on behalf of the caller.
type Relay struct {
	version string
	timeout time.Duration
	deps    Deps
}

func NewRelay(cfg *config.Config, deps Deps) *Relay {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{version: cfg.Version, timeout: timeout, deps: deps.withDefaults()}
}

// exchange tracks one request through the relay states.
type exchange struct {
	state    state
	identity egress.Identity
	host     string
}

func (h *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ex := &exchange{state: stateAuthenticating, identity: egress.Default()}

	code, err := h.serve(w, r, ex)
	final := stateCompleted
	if err != nil {
		final = stateAborted
		code = relayerr.Status(err)
		http.Error(w, err.Error(), code)
	}
	h.deps.Metrics.ObserveRequest(final.String(), code)

	attrs := []any{
		"method", r.Method,
		"target", ex.host,
		"egress", ex.identity.String(),
		"state", ex.state.String(),
		"status", code,
		"duration", time.Since(start),
	}
	if err != nil {
		h.deps.Log.Info("relay aborted", append(attrs, "err", err)...)
		return
	}
	h.deps.Log.Debug("relay completed", attrs...)
}

func (h *Relay) serve(w http.ResponseWriter, r *http.Request, ex *exchange) (int, error) {
	if err := h.deps.Auth.Authenticate(r); err != nil {
		return 0, err
	}

	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("url"))
	if raw == "" {
		if r.Method == http.MethodGet {
			return h.liveness(w, r), nil
		}
		return 0, relayerr.MissingURL()
	}
	target, err := normalizeTarget(raw)
	if err != nil {
		return 0, err
	}
	ex.host = target.Host

	ex.state = stateResolvingEgress
	id, err := h.deps.Egress.Resolve(r.Context(), egress.Request{ExplicitProxy: q.Get("proxy")})
	if err != nil {
		if relayerr.KindOf(err) == relayerr.KindUnknown {
			err = relayerr.Configuration("egress resolution failed", err)
		}
		return 0, err
	}
	ex.identity = id
	h.deps.Metrics.ObserveEgress(id.Kind.String())

	ex.state = stateBuildingTransport
	ag, err := agent.New(id, h.deps.Agent)
	if err != nil {
		return 0, relayerr.Configuration("failed to build transport", err)
	}
	defer ag.Close()

	ex.state = stateForwarding
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), http.NoBody)
	if err != nil {
		return 0, relayerr.InvalidURL(raw)
	}
	out.Header = headers.Inbound(r.Header, headers.OverridesFromQuery(q))
	if hasBody(r) {
		out.Body = r.Body
		out.ContentLength = r.ContentLength
	}

	client := &http.Client{Transport: ag.RoundTripper(h.deps.Fallback)}
	began := time.Now()
	resp, err := client.Do(out)
	if err != nil {
		return 0, classify(ctx, target.Host, err)
	}
	defer resp.Body.Close()

	// Nothing reaches the client until the body is read in full.
	body, err := io.ReadAll(resp.Body)
	h.deps.Metrics.ObserveUpstream(id.Kind.String(), time.Since(began))
	if err != nil {
		return 0, classify(ctx, target.Host, err)
	}

	ex.state = stateResponding
	headers.CopyOutbound(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		h.deps.Log.Debug("client went away", "err", err)
	}
	return resp.StatusCode, nil
}

func (h *Relay) liveness(w http.ResponseWriter, r *http.Request) int {
	var b strings.Builder
	fmt.Fprintf(&b, "v6relay is working as expected (v%s).\n", h.version)

	if m := h.deps.Interface; m != nil && m.Supported(r.Context()) {
		addrs, err := m.Addresses(r.Context())
		if err != nil {
			h.deps.Log.Debug("listing addresses failed", "interface", m.Interface(), "err", err)
		}
		for _, a := range addrs {
			b.WriteString(a)
			b.WriteByte('\n')
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, b.String())
	return http.StatusOK
}

// normalizeTarget defaults the scheme to https and rejects anything that is
// not http(s) with a host.
func normalizeTarget(raw string) (*url.URL, error) {
	if i := strings.Index(raw, "://"); i > 0 {
		switch strings.ToLower(raw[:i]) {
		case "http", "https":
		default:
			return nil, relayerr.InvalidURL(raw)
		}
	} else {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, relayerr.InvalidURL(raw)
	}
	return u, nil
}

func hasBody(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	return r.ContentLength != 0 || len(r.TransferEncoding) > 0
}

func classify(ctx context.Context, host string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
		return relayerr.Timeout(host, err)
	}
	return relayerr.Upstream(host, err)
}
