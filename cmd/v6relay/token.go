package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qza666/v6relay/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the API token for the current time bucket",
	Long: `Print the API token valid right now. Tokens rotate every 180 seconds and
the relay also accepts the previous and next bucket's token.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := auth.New(cfg.AuthConfig.TokenSeed, true)
		fmt.Fprintln(cmd.OutOrStdout(), a.Generate(time.Now()))
	},
}
