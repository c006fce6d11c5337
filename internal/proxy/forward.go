package proxy

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/qza666/v6relay/internal/agent"
	"github.com/qza666/v6relay/internal/auth"
	"github.com/qza666/v6relay/internal/config"
	"github.com/qza666/v6relay/internal/egress"
	"github.com/qza666/v6relay/internal/headers"
)

const proxyAuthRequired = "HTTP/1.1 407 Proxy Authentication Required\r\n" +
	"Proxy-Authenticate: Basic realm=\"v6relay\"\r\n\r\n"

// NewForwardProxy returns a classic HTTP proxy whose traffic leaves through
// the same egress identities as the relay. CONNECT tunnels are spliced
// byte for byte.
func NewForwardProxy(cfg *config.Config, deps Deps) *goproxy.ProxyHttpServer {
	deps = deps.withDefaults()
	opts := deps.Agent
	opts.DisableKeepAlives = true
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = cfg.Debug
	proxy.Logger = printfLogger{log: deps.Log}

	proxy.OnRequest().HijackConnect(
		func(req *http.Request, client net.Conn, ctx *goproxy.ProxyCtx) {
			if err := deps.Auth.Check(proxyToken(req)); err != nil {
				client.Write([]byte(proxyAuthRequired))
				client.Close()
				deps.Metrics.ObserveTunnel("unauthorized")
				return
			}

			id, err := deps.Egress.Resolve(req.Context(), egress.Request{})
			if err != nil {
				deps.Log.Warn("egress resolution failed", "target", req.URL.Host, "err", err)
				fmt.Fprintf(client, "%s 500 Internal Server Error\r\n\r\n", req.Proto)
				client.Close()
				deps.Metrics.ObserveTunnel("error")
				return
			}
			deps.Metrics.ObserveEgress(id.Kind.String())

			dial, err := tunnelDialer(proxy, id, opts)
			if err != nil {
				deps.Log.Warn("building tunnel dialer failed", "egress", id.String(), "err", err)
				fmt.Fprintf(client, "%s 500 Internal Server Error\r\n\r\n", req.Proto)
				client.Close()
				deps.Metrics.ObserveTunnel("error")
				return
			}

			dctx, cancel := context.WithTimeout(context.Background(), timeout)
			server, err := dial(dctx, "tcp", req.URL.Host)
			cancel()
			if err != nil {
				deps.Log.Info("tunnel dial failed", "target", req.URL.Host, "egress", id.String(), "err", err)
				fmt.Fprintf(client, "%s 502 Bad Gateway\r\n\r\n", req.Proto)
				client.Close()
				deps.Metrics.ObserveTunnel("dial_failed")
				return
			}

			deps.Log.Debug("CONNECT", "target", req.URL.Host, "egress", id.String())
			fmt.Fprintf(client, "%s 200 Connection established\r\n\r\n", req.Proto)
			deps.Metrics.ObserveTunnel("ok")

			go copyData(client, server)
			go copyData(server, client)
		},
	)

	proxy.OnRequest().DoFunc(
		func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			if err := deps.Auth.Check(proxyToken(req)); err != nil {
				resp := goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusProxyAuthRequired, "Proxy Authentication Required")
				resp.Header.Set("Proxy-Authenticate", `Basic realm="v6relay"`)
				deps.Metrics.ObserveRequest("aborted", http.StatusProxyAuthRequired)
				return req, resp
			}

			id, err := deps.Egress.Resolve(req.Context(), egress.Request{})
			if err != nil {
				deps.Log.Warn("egress resolution failed", "target", req.URL.Host, "err", err)
				deps.Metrics.ObserveRequest("aborted", http.StatusInternalServerError)
				return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusInternalServerError, "Failed to select egress")
			}
			deps.Metrics.ObserveEgress(id.Kind.String())

			ag, err := agent.New(id, opts)
			if err != nil {
				deps.Log.Warn("building transport failed", "egress", id.String(), "err", err)
				deps.Metrics.ObserveRequest("aborted", http.StatusInternalServerError)
				return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusInternalServerError, "Failed to build transport")
			}

			req.Header = headers.Inbound(req.Header, headers.Overrides{})
			req.Header.Del("Proxy-Authorization")

			deps.Log.Debug("HTTP", "target", req.URL.Host, "egress", id.String())
			rt := ag.RoundTripper(deps.Fallback)
			ctx.UserData = id
			ctx.RoundTripper = goproxy.RoundTripperFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Response, error) {
				return rt.RoundTrip(req)
			})
			return req, nil
		},
	)

	proxy.OnResponse().DoFunc(
		func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
			if _, ours := ctx.UserData.(egress.Identity); !ours {
				return resp
			}
			if resp == nil {
				deps.Metrics.ObserveRequest("aborted", http.StatusBadGateway)
				return resp
			}
			deps.Metrics.ObserveRequest("completed", resp.StatusCode)
			resp.Header = headers.Outbound(resp.Header)
			return resp
		},
	)

	return proxy
}

// tunnelDialer returns the raw dialer for a CONNECT tunnel. HTTP upstream
// proxies are chained with a nested CONNECT.
func tunnelDialer(p *goproxy.ProxyHttpServer, id egress.Identity, opts agent.Options) (agent.DialFunc, error) {
	if id.Kind == egress.UpstreamProxy && !id.IsSOCKS() {
		dial := p.NewConnectDialToProxy(id.Proxy.String())
		if dial == nil {
			return nil, fmt.Errorf("unsupported upstream proxy scheme %q", id.Scheme())
		}
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}, nil
	}
	ag, err := agent.New(id, opts)
	if err != nil {
		return nil, err
	}
	return ag.Dial, nil
}

// proxyToken extracts the API token from Proxy-Authorization Basic
// credentials (the password, or the username when the password is empty),
// falling back to the API-Token header.
func proxyToken(req *http.Request) string {
	if tok := req.Header.Get(auth.HeaderName); tok != "" {
		return tok
	}

	const prefix = "Basic "
	h := req.Header.Get("Proxy-Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(h[len(prefix):])
	if err != nil {
		return ""
	}
	user, pass, _ := strings.Cut(string(decoded), ":")
	if pass == "" {
		return user
	}
	return pass
}

func copyData(dst, src net.Conn) {
	defer dst.Close()
	defer src.Close()
	io.Copy(dst, src)
}

type printfLogger struct {
	log *slog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goproxy")
}
