package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/qza666/v6relay/internal/addrgen"
	"github.com/qza666/v6relay/internal/agent"
	"github.com/qza666/v6relay/internal/auth"
	"github.com/qza666/v6relay/internal/config"
	"github.com/qza666/v6relay/internal/dns"
	"github.com/qza666/v6relay/internal/egress"
	"github.com/qza666/v6relay/internal/metrics"
	"github.com/qza666/v6relay/internal/provider"
	"github.com/qza666/v6relay/internal/proxy"
	"github.com/qza666/v6relay/internal/server"
	"github.com/qza666/v6relay/internal/sysutils"
)

var (
	listen        string
	forwardListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay (and the forward proxy when configured)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.Listen = listen
		}
		if cmd.Flags().Changed("forward-listen") {
			cfg.ForwardListen = forwardListen
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		runner := sysutils.ExecRunner()
		if err := prepareHost(cmd.Context(), cfg, sysutils.NewHost(runner), logger); err != nil {
			return err
		}

		a, err := newApp(cfg, sysutils.DefaultNetwork(cfg.NetworkBackend, runner), logger)
		if err != nil {
			return err
		}

		servers := []*http.Server{server.New(cfg.Listen, a.mux)}
		if cfg.ForwardListen != "" {
			servers = append(servers, server.New(cfg.ForwardListen, a.forward))
		}

		logger.Info("starting v6relay",
			"version", cfg.Version,
			"listen", cfg.Listen,
			"forward_listen", cfg.ForwardListen,
			"cidr", cfg.CIDR(),
			"interface", cfg.Interface,
			"upstream_proxies", len(cfg.UpstreamProxies),
			"token_required", a.authn.Required(),
		)
		return server.Run(cmd.Context(), logger, servers...)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listen, "listen", "", "Relay listen address (overrides LISTEN)")
	serveCmd.Flags().StringVar(&forwardListen, "forward-listen", "", "Forward proxy listen address (overrides FORWARD_LISTEN)")
}

// prepareHost applies the optional kernel and routing settings.
func prepareHost(ctx context.Context, c *config.Config, host *sysutils.Host, log *slog.Logger) error {
	if c.AutoForwarding {
		if err := host.SetV6Forwarding(ctx); err != nil {
			return fmt.Errorf("enable IPv6 forwarding: %w", err)
		}
		log.Info("enabled IPv6 forwarding")
	}

	if c.AutoRoute {
		cidr := c.CIDR()
		if cidr == "" {
			return fmt.Errorf("AUTO_ROUTE requires IPV6_PREFIX")
		}
		if err := host.AddV6Route(ctx, cidr, c.Interface); err != nil {
			return fmt.Errorf("add local route for %s: %w", cidr, err)
		}
		log.Info("added local route", "cidr", cidr, "interface", c.Interface)
	}

	if c.AutoIpNoLocalBind {
		if err := host.SetIpNonLocalBind(ctx); err != nil {
			return fmt.Errorf("enable ip_nonlocal_bind: %w", err)
		}
		log.Info("enabled ip_nonlocal_bind")
	}
	return nil
}

type app struct {
	registry *prometheus.Registry
	authn    *auth.Authenticator
	relay    *proxy.Relay
	forward  http.Handler
	mux      http.Handler
}

// newApp wires every component for c on top of network.
func newApp(c *config.Config, network sysutils.Network, log *slog.Logger) (*app, error) {
	resolver, err := dns.New(c.Resolver)
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	opts := agent.Options{Resolver: resolver}
	fallback := agent.NewDefaultTransport(opts)

	mgr := sysutils.NewManager(network, sysutils.ManagerConfig{
		Interface: c.Interface,
		Assign:    c.AssignAddress,
		Timeout:   c.AssignTimeout,
	})
	local := egress.LocalStrategy{
		Manager:   mgr,
		Generator: addrgen.New(c.IPv6Prefix, c.IPv6Subnet),
		Prober:    egress.UDPProbe{Target: c.ProbeTarget, Timeout: c.ProbeTimeout},
		Log:       log,
	}

	authn := auth.New(c.AuthConfig.TokenSeed, c.AuthConfig.Required)
	deps := proxy.Deps{
		Auth:      authn,
		Egress:    egress.NewResolver(log, egress.Standard(log, c.UpstreamProxies, local)...),
		Interface: mgr,
		Agent:     opts,
		Fallback:  fallback,
		Metrics:   m,
		Log:       log,
	}

	relay := proxy.NewRelay(c, deps)
	return &app{
		registry: reg,
		authn:    authn,
		relay:    relay,
		forward:  proxy.NewForwardProxy(c, deps),
		mux: server.NewMux(server.Routes{
			Relay: relay,
			Provider: &provider.Handler{
				Fetcher: provider.NewFetcher(fallback),
				Auth:    authn,
				Metrics: m,
				Log:     log,
			},
			Metrics: metrics.Handler(reg),
		}),
	}, nil
}
