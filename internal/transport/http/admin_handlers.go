package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Accounts manages the users allowed to log in.
type Accounts interface {
	Register(ctx context.Context, username, password string) (*store.User, error)
	ListUsers(ctx context.Context) ([]*store.User, error)
}

// AdminHandlers exposes the operator surface over HTTP.
type AdminHandlers struct {
	admin    core.Admin
	accounts Accounts
	log      *zerolog.Logger
}

// NewAdminHandlers creates a new admin handlers instance.
func NewAdminHandlers(admin core.Admin, accounts Accounts, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		admin:    admin,
		accounts: accounts,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AnnounceRequest represents the announce request body.
type AnnounceRequest struct {
	Text string `json:"text" binding:"required"`
}

// AnnounceResponse reports how many connections the announcement was queued for.
type AnnounceResponse struct {
	Recipients int `json:"recipients"`
}

// CreateUserRequest represents the create user request body.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

// Inspect lists channels with their members.
// GET /api/admin/channels
func (h *AdminHandlers) Inspect(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.Inspect())
}

// Announce sends an operator notice to every connection.
// POST /api/admin/announce
func (h *AdminHandlers) Announce(c *gin.Context) {
	var req AnnounceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		h.log.Debug().Err(err).Msg("invalid announce request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}

	n := h.admin.Announce(req.Text)
	c.JSON(http.StatusOK, AnnounceResponse{Recipients: n})
}

// Shutdown stops the hub. The response is written before connections are closed.
// POST /api/admin/shutdown
func (h *AdminHandlers) Shutdown(c *gin.Context) {
	h.log.Warn().Str("remote", c.ClientIP()).Msg("shutdown requested over admin api")
	c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})
	go h.admin.Shutdown()
}

// ListUsers returns every registered account.
// GET /api/admin/users
func (h *AdminHandlers) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, toUserResponse(u))
	}
	c.JSON(http.StatusOK, response)
}

// CreateUser registers a new account.
// POST /api/admin/users
func (h *AdminHandlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create user request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("username", user.Username).Msg("user registered")
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}
