package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/qza666/v6relay/internal/config"
	"github.com/qza666/v6relay/internal/logging"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

var (
	debug     bool
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "v6relay",
	Short: "HTTP relay with rotating IPv6 egress",
	Long: `v6relay fetches a caller-specified URL on the caller's behalf.

Each request leaves through one of:
  - an explicit or configured upstream proxy (HTTP or SOCKS5)
  - a freshly generated address inside the configured IPv6 prefix
  - the system default route

Configuration is read from the environment; flags override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.Version = Version
		if debug {
			c.Debug = true
		}
		if logFormat != "" {
			c.LogFormat = logFormat
		}
		cfg = c
		logger = logging.New(cfg.Debug, cfg.LogFormat, cmd.ErrOrStderr())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "v6relay %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (overrides DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides LOG_FORMAT)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd, tokenCmd, versionCmd)
}
