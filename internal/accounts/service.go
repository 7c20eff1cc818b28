// Package accounts validates credentials for the single admin account.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/everkeep/everkeep/internal/config"
)

// ErrInvalidCredentials is returned when username or password do not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service checks login attempts against the configured admin account. The
// password is hashed at construction so the plaintext never outlives startup.
type Service struct {
	username     string
	passwordHash []byte
	logger       *slog.Logger
}

// NewService builds the account service from the admin config section.
func NewService(log *slog.Logger, cfg config.AdminConfig) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		return nil, errors.New("admin username is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("admin password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Service{
		username:     username,
		passwordHash: hash,
		logger:       log.With(slog.String("service", "accounts")),
	}, nil
}

// Login authenticates by username and password.
func (s *Service) Login(ctx context.Context, username, password string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return Account{}, ErrInvalidCredentials
	}
	if strings.TrimSpace(username) != s.username {
		s.logger.Warn("login rejected", slog.String("username", username))
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		s.logger.Warn("login rejected", slog.String("username", username))
		return Account{}, ErrInvalidCredentials
	}
	return Account{
		ID:          AdminUserID,
		Username:    s.username,
		Role:        RoleAdmin,
		DisplayName: s.username,
	}, nil
}
