package core

import "errors"

// Error codes carried by system notices.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAlreadyAuth        = "already_authenticated"
	ErrCodeNotInChannel       = "not_in_channel"
	ErrCodeUnknownType        = "unknown_type"
	ErrCodeInternal           = "internal_error"
	ErrCodeServerFull         = "server_full"
	ErrCodeShutdown           = "shutdown"
)

// Status codes for non-error system notices.
const (
	CodeAuthOK       = "auth_ok"
	CodeJoined       = "joined"
	CodeLeft         = "left"
	CodeUserJoined   = "user_joined"
	CodeUserLeft     = "user_left"
	CodeAnnouncement = "announcement"
	CodeBye          = "bye"
)

var (
	ErrUnauthenticated    = coreError(ErrCodeUnauthorized, "must authenticate first")
	ErrInvalidCredentials = coreError(ErrCodeInvalidCredentials, "invalid username or password")
	ErrCredentialsMissing = coreError(ErrCodeBadRequest, "username and password are required")
	ErrChannelRequired    = coreError(ErrCodeBadRequest, "channel name is required")
	ErrTextRequired       = coreError(ErrCodeBadRequest, "message text is required")
	ErrNotInChannel       = coreError(ErrCodeNotInChannel, "join a channel first")
	ErrAuthUnavailable    = coreError(ErrCodeInternal, "authentication unavailable")
	ErrHubClosed          = coreError(ErrCodeShutdown, "server is shutting down")
	ErrServerFull         = coreError(ErrCodeServerFull, "server is full")

	// ErrConnClosed is returned for operations on a connection that already left the live set.
	ErrConnClosed = errors.New("connection closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
