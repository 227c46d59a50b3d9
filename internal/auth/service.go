package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password or a token don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 4
)

// Service is the relay's credential store: it checks passwords against bcrypt hashes
// kept in a store.UserStore and optionally mints session tokens.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	passwords passwordHasher
}

// ServiceOption tunes a Service.
type ServiceOption func(*Service)

// WithPasswordCost sets the bcrypt cost for new hashes. Zero keeps
// DefaultPasswordCost; out-of-range values are clamped to what bcrypt accepts.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) {
		s.passwords = newPasswordHasher(cost)
	}
}

// NewService creates a new authentication service. A nil jwtConfig disables tokens.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig, opts ...ServiceOption) *Service {
	s := &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		passwords: newPasswordHasher(DefaultPasswordCost),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate reports whether password matches the stored hash of username.
// Unknown users and wrong passwords both yield false with a nil error; the error is
// reserved for store failures. A hash made at another cost is replaced after a
// successful check.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup user: %w", err)
	}

	if !s.passwords.matches(user.PasswordHash, password) {
		return false, nil
	}
	if s.passwords.stale(user.PasswordHash) {
		s.rehash(ctx, user.Username, password)
	}
	return true, nil
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := s.passwords.hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SetPassword replaces the password of an existing user.
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	username, err := validateCredentials(username, password)
	if err != nil {
		return err
	}

	hashedPassword, err := s.passwords.hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, username, hashedPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// rehash is best effort: the login already succeeded, a failed upgrade retries
// on the next one.
func (s *Service) rehash(ctx context.Context, username, password string) {
	hashed, err := s.passwords.hash(password)
	if err != nil {
		return
	}
	_ = s.store.UpdatePassword(ctx, username, hashed)
}

// ListUsers returns every registered account.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// TokensEnabled reports whether session tokens can be issued.
func (s *Service) TokensEnabled() bool {
	return s.jwtConfig != nil && len(s.jwtConfig.Secret) > 0
}

// IssueToken creates a session token for an authenticated user.
func (s *Service) IssueToken(username string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// VerifyToken validates a session token and returns the username it was issued for.
func (s *Service) VerifyToken(token string) (string, error) {
	if !s.TokensEnabled() {
		return "", ErrTokensDisabled
	}
	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return claims.Username, nil
}

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen || strings.ContainsAny(username, " \t\r\n") {
		return "", ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return "", ErrInvalidPassword
	}
	return username, nil
}
