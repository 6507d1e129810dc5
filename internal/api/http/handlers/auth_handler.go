package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/service"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// AuthHandler exposes the admin login endpoint.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username, password required", nil)
	}

	token, expiresAt, err := h.service.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{AccessToken: token, ExpiresAt: expiresAt}})
}
