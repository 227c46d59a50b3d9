package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	applog "github.com/vovakirdan/wirechat-relay/internal/log"
)

var (
	listenAddr string
	httpAddr   string
	dbPath     string
	noConsole  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	Long: `Start the TCP listener, the HTTP server (health, WebSocket gateway, admin API)
and, unless disabled, the operator console on stdin.

Console commands: sys:<text>, list, shutdown, help.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	registerServeFlags(serveCmd)
}

func registerServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddr, "addr", "", "TCP listen address (overrides config)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "disable the operator console on stdin")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := applog.New(cfg.LogLevel)

	var opts []app.Option
	if cfg.AdminConsole {
		// stdout belongs to the console, logs go to stderr.
		logger = applog.NewWithWriter(os.Stderr, cfg.LogLevel)
		opts = append(opts, app.WithConsole(os.Stdin, os.Stdout))
	}
	if cfgPath != "" {
		opts = append(opts, app.WithConfigWatch(cfgPath))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Msg("starting wirechat relay")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// loadConfig resolves configuration: defaults < file < env < command line flags.
func loadConfig() (config.Config, string, error) {
	bootstrap := applog.NewWithWriter(os.Stderr, firstNonEmpty(logLevel, "info"))

	cfg, path, err := config.Load(bootstrap, configFile)
	if err != nil {
		return cfg, path, fmt.Errorf("load config: %w", err)
	}

	cfg.UpdateFrom(config.Config{
		Addr:         listenAddr,
		HTTPAddr:     httpAddr,
		DatabasePath: dbPath,
		LogLevel:     logLevel,
	})
	if noConsole {
		cfg.AdminConsole = false
	}
	return cfg, path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
