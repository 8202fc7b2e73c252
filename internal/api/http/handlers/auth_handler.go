package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/proptrade-auth/internal/api/dto"
	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/service"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// AuthHandler exposes registration, login and session endpoints.
type AuthHandler struct {
	auth *service.AuthService
	// exposeTokens returns verification tokens in responses; development only.
	exposeTokens bool
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, exposeTokens bool) *AuthHandler {
	return &AuthHandler{auth: authService, exposeTokens: exposeTokens}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TenantID:  req.TenantID,
	})
	if err != nil {
		return err
	}

	data := fiber.Map{"account": dto.NewAccountResponse(res.Account)}
	if h.exposeTokens && res.VerificationToken != nil {
		data["verification_token"] = res.VerificationToken.Value
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": data})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return err
	}
	if res.RequiresTwoFactor {
		return c.JSON(fiber.Map{"data": dto.TwoFactorChallengeResponse{
			RequiresTwoFactor: true,
			MFAToken:          res.TwoFactorToken,
			ExpiresAt:         res.TwoFactorTokenExpiresAt,
		}})
	}
	return c.JSON(sessionResponse(res))
}

// LoginTwoFactor handles POST /api/v1/auth/login/2fa.
func (h *AuthHandler) LoginTwoFactor(c *fiber.Ctx) error {
	var req dto.TwoFactorLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.MFAToken == "" || req.Code == "" {
		return apperrors.NewValidationError("mfa_token and code required", nil)
	}

	res, err := h.auth.LoginTwoFactor(c.UserContext(), req.MFAToken, req.Code, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(sessionResponse(res))
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}

	if err := h.auth.Logout(c.UserContext(), principal, req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "logged out"}})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		return apperrors.NewValidationError("refresh_token required", nil)
	}

	token, exp, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{TokenType: "Bearer", Token: token, ExpiresAt: exp}})
}

// VerifyEmail handles GET /api/v1/auth/verify-email/:token.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	account, err := h.auth.VerifyEmail(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"account": dto.NewAccountResponse(account)}})
}

// ResendVerification handles POST /api/v1/auth/verify-email/resend.
func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.auth.ResendVerification(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"message": "if the account exists and is unverified, a verification email has been sent",
	}})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	account, err := h.auth.Me(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"account": dto.NewAccountResponse(account)}})
}

func sessionResponse(res *service.LoginResult) fiber.Map {
	return fiber.Map{
		"data": fiber.Map{
			"account": dto.NewAccountResponse(res.Account),
			"auth":    dto.NewTokenPairResponse(res.Tokens),
		},
	}
}
