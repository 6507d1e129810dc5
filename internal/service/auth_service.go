package service

import (
	"context"
	"time"

	"github.com/etu-nz/bmm-service/internal/auth"
	"github.com/etu-nz/bmm-service/internal/config"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// AuthService is the minimal credential boundary for the admin API. Full
// identity management lives outside this service.
type AuthService struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthService creates the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login verifies the configured admin credential and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.cfg.AdminPasswordHash == "" {
		return "", time.Time{}, apperrors.NewUnauthorized("admin login not configured")
	}
	if username != s.cfg.AdminUsername {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(s.cfg.AdminPasswordHash, password); err != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(username)
	if err != nil {
		return "", time.Time{}, apperrors.MapError(err)
	}
	return token, expiresAt, nil
}
