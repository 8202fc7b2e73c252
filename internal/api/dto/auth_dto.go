package dto

import (
	"time"

	"github.com/spec-kit/proptrade-auth/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	TenantID  *string `json:"tenant_id"`
}

// LoginRequest payload for the password step.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TwoFactorLoginRequest payload for the second login step.
type TwoFactorLoginRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest optionally names a refresh token to revoke too.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailRequest is used by flows keyed only on an address.
type EmailRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload for confirming reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// TwoFactorCodeRequest carries an authenticator code.
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorDisableRequest re-supplies the password.
type TwoFactorDisableRequest struct {
	Password string `json:"password"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	Role             domain.Role `json:"role"`
	TenantID         *string     `json:"tenant_id,omitempty"`
	Active           bool        `json:"is_active"`
	Verified         bool        `json:"is_verified"`
	EmailVerifiedAt  *time.Time  `json:"email_verified_at,omitempty"`
	TwoFactorEnabled bool        `json:"two_factor_enabled"`
	LastLoginAt      *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// NewAccountResponse maps a domain account. Secrets and hashes are omitted.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Email:            a.Email,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Role:             a.Role,
		TenantID:         a.TenantID,
		Active:           a.Active,
		Verified:         a.Verified,
		EmailVerifiedAt:  a.EmailVerifiedAt,
		TwoFactorEnabled: a.TwoFactorEnabled,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
	}
}

// TokenPairResponse is returned when a session is established.
type TokenPairResponse struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// NewTokenPairResponse maps issued tokens.
func NewTokenPairResponse(p *domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		TokenType:        "Bearer",
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// AuthResponse standard response for a single access token.
type AuthResponse struct {
	TokenType string    `json:"token_type"`
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TwoFactorChallengeResponse tells the client a code is required.
type TwoFactorChallengeResponse struct {
	RequiresTwoFactor bool      `json:"requires_2fa"`
	MFAToken          string    `json:"mfa_token"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// TwoFactorSetupResponse carries enrollment material.
type TwoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}
