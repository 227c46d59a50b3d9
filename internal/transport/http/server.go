package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Hub is what the HTTP surface needs from the chat hub.
type Hub interface {
	core.Admin
	Serve(ctx context.Context, rwc net.Conn)
}

// NewServer builds the HTTP server: health check, WebSocket gateway and, when an
// admin token is configured, the admin API. accounts may be nil, which leaves out
// the user management routes.
func NewServer(hub Hub, accounts Accounts, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(hub, accounts, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the handler behind NewServer. The WebSocket gateway sits on a
// plain mux in front of gin: gin's response writer buffers the status code, so the
// 101 never reaches the wire before the connection is hijacked.
func NewRouter(hub Hub, accounts Accounts, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, logger))
	mux.Handle("/", newEngine(hub, accounts, cfg, logger))
	return mux
}

func newEngine(hub Hub, accounts Accounts, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	if cfg.AdminToken == "" {
		logger.Info().Msg("admin api disabled: no admin_token configured")
		return router
	}

	admin := NewAdminHandlers(hub, accounts, logger)
	api := router.Group("/api/admin")
	api.Use(AdminAuthMiddleware(cfg.AdminToken, logger))
	{
		api.GET("/channels", admin.Inspect)
		api.POST("/announce", admin.Announce)
		api.POST("/shutdown", admin.Shutdown)
		if accounts != nil {
			api.GET("/users", admin.ListUsers)
			api.POST("/users", admin.CreateUser)
		}
	}
	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
