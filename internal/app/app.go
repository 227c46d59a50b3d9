package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/admin"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	applog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
	"github.com/vovakirdan/wirechat-relay/internal/transport/tcp"
)

// App wires together store, core and transport layers.
type App struct {
	cfg        *config.Config
	configPath string

	hub     *core.Hub
	tcp     *tcp.Server
	server  *stdhttp.Server
	console *admin.Console
	store   store.Store
	log     *zerolog.Logger
}

// Option customizes App construction.
type Option func(*App)

// WithConsole attaches an operator console reading from in and writing to out.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.console = admin.NewConsole(a.hub, in, out, a.log)
	}
}

// WithConfigWatch reloads the log level whenever the config file at path changes.
func WithConfigWatch(path string) Option {
	return func(a *App) {
		a.configPath = path
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var jwtConfig *auth.JWTConfig
	if cfg.JWTSecret != "" {
		jwtConfig = &auth.JWTConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.TokenTTL,
		}
	}
	authService := auth.NewService(st, jwtConfig, auth.WithPasswordCost(cfg.PasswordCost))

	hubOpts := core.Options{
		Credentials:    authService,
		SendQueueSize:  cfg.SendQueueSize,
		MaxLineBytes:   cfg.MaxLineBytes,
		MaxConnections: cfg.MaxConnections,
		WriteTimeout:   cfg.WriteTimeout,
		Logger:         logger,
	}
	if authService.TokensEnabled() {
		hubOpts.Tokens = authService
	} else {
		logger.Info().Msg("session tokens disabled: no jwt_secret configured")
	}
	hub := core.NewHub(hubOpts)

	a := &App{
		cfg:   cfg,
		hub:   hub,
		tcp:   tcp.New(hub, cfg.Addr, cfg.AcceptTimeout, logger),
		store: st,
		log:   logger,
	}
	if cfg.HTTPAddr != "" {
		a.server = transporthttp.NewServer(hub, authService, cfg, logger)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Hub exposes the running hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Addr returns the bound TCP address once Run has started listening.
func (a *App) Addr() net.Addr {
	return a.tcp.Addr()
}

// Run starts the listeners and blocks until ctx is cancelled, the hub is shut down
// from the console or admin API, or a listener fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if err := a.tcp.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Sessions end with serveCtx, which outlives ctx until the hub has queued
	// its shutdown notice.
	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()

	tcpErr := make(chan error, 1)
	go func() { tcpErr <- a.tcp.Serve(serveCtx) }()

	httpErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("http server started")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				httpErr <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if a.console != nil {
		go func() {
			if err := a.console.Run(ctx); err != nil {
				a.log.Warn().Err(err).Msg("admin console stopped")
			}
		}()
	}

	if a.configPath != "" {
		level := a.cfg.LogLevel
		config.Watch(a.log, a.configPath, func(next config.Config) {
			if next.LogLevel == level {
				return
			}
			level = next.LogLevel
			applog.SetLevel(level)
			a.log.Info().Str("level", level).Msg("log level changed")
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case <-a.hub.Done():
	case err := <-tcpErr:
		runErr = err
		tcpErr <- nil
	case err := <-httpErr:
		runErr = err
	}

	a.hub.Shutdown()
	cancel()
	cancelServe()

	if a.server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancelShutdown()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("http shutdown: %w", err)
		}
	}

	select {
	case err := <-tcpErr:
		if err != nil && runErr == nil {
			runErr = err
		}
	case <-time.After(a.cfg.ShutdownTimeout):
		a.log.Warn().Msg("tcp listener did not stop in time")
	}
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
