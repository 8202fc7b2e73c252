package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/proptrade-auth/internal/api/dto"
	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/service"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// AccountsHandler exposes account administration.
type AccountsHandler struct {
	accounts *service.AccountService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts *service.AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// Get handles GET /api/v1/accounts/:id.
func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	account, err := h.accounts.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Deactivate handles POST /api/v1/accounts/:id/deactivate.
func (h *AccountsHandler) Deactivate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	account, err := h.accounts.Deactivate(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}
