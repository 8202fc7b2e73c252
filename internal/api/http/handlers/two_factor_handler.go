package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/proptrade-auth/internal/api/dto"
	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/service"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// TwoFactorHandler exposes TOTP enrollment endpoints.
type TwoFactorHandler struct {
	auth *service.AuthService
}

// NewTwoFactorHandler constructs handler.
func NewTwoFactorHandler(authService *service.AuthService) *TwoFactorHandler {
	return &TwoFactorHandler{auth: authService}
}

// Enable handles POST /api/v1/auth/2fa/enable.
func (h *TwoFactorHandler) Enable(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	setup, err := h.auth.EnableTwoFactor(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
	}})
}

// Confirm handles POST /api/v1/auth/2fa/confirm.
func (h *TwoFactorHandler) Confirm(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TwoFactorCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Code == "" {
		return apperrors.NewValidationError("code required", nil)
	}

	if err := h.auth.ConfirmTwoFactor(c.UserContext(), principal, req.Code); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"two_factor_enabled": true}})
}

// Disable handles POST /api/v1/auth/2fa/disable.
func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TwoFactorDisableRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Password == "" {
		return apperrors.NewValidationError("password required", nil)
	}

	if err := h.auth.DisableTwoFactor(c.UserContext(), principal, req.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"two_factor_enabled": false}})
}
