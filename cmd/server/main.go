package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

// rootCmd runs the relay when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "wirechat-relay",
	Short: "Multi-user chat relay over TCP",
	Long: `wirechat-relay accepts TCP clients speaking line-delimited JSON, authenticates
them against a user database and relays messages between members of named channels.

Without a subcommand the server is started, same as 'wirechat-relay serve'.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default config.yaml, or $WIRECHAT_CONFIG_DEFAULT_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	registerServeFlags(rootCmd)
}
