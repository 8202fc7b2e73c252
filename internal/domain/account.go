package domain

import (
	"strings"
	"time"

	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// Role enumerates account roles.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// Account is the identity record behind every session.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	Phone            *string
	CountryCode      *string
	Role             Role
	TenantID         *string
	Active           bool
	Verified         bool
	EmailVerifiedAt  *time.Time
	TwoFactorEnabled bool
	TwoFactorSecret  *string
	LastLoginAt      *time.Time
	LastLoginIP      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeEmail canonicalizes an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount builds an unverified account with two-factor disabled.
func NewAccount(email, passwordHash, firstName, lastName string, tenantID *string) *Account {
	return &Account{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         RoleUser,
		TenantID:     tenantID,
		Active:       true,
	}
}

// HasTwoFactorSecret reports whether a secret has been generated.
func (a *Account) HasTwoFactorSecret() bool {
	return a.TwoFactorSecret != nil && *a.TwoFactorSecret != ""
}

// StageTwoFactorSecret stores a new unconfirmed secret, replacing any prior
// unconfirmed one.
func (a *Account) StageTwoFactorSecret(secret string) error {
	if a.TwoFactorEnabled {
		return apperrors.ErrTwoFactorEnabled
	}
	a.TwoFactorSecret = &secret
	return nil
}

// CanConfirmTwoFactor checks the enrollment preconditions for confirmation.
func (a *Account) CanConfirmTwoFactor() error {
	if a.TwoFactorEnabled {
		return apperrors.ErrTwoFactorEnabled
	}
	if !a.HasTwoFactorSecret() {
		return apperrors.ErrNoSecretGenerated
	}
	return nil
}

// ConfirmTwoFactor activates two-factor once the staged secret is proven.
func (a *Account) ConfirmTwoFactor() error {
	if err := a.CanConfirmTwoFactor(); err != nil {
		return err
	}
	a.TwoFactorEnabled = true
	return nil
}

// DisableTwoFactor clears the secret and turns two-factor off.
func (a *Account) DisableTwoFactor() {
	a.TwoFactorEnabled = false
	a.TwoFactorSecret = nil
}

// MarkVerified flags the email address as verified.
func (a *Account) MarkVerified(at time.Time) {
	a.Verified = true
	verifiedAt := at.UTC()
	a.EmailVerifiedAt = &verifiedAt
}

// RecordLogin stamps login bookkeeping.
func (a *Account) RecordLogin(at time.Time, ip string) {
	loginAt := at.UTC()
	a.LastLoginAt = &loginAt
	if ip != "" {
		a.LastLoginIP = &ip
	}
}

// Deactivate disables the account in place.
func (a *Account) Deactivate() {
	a.Active = false
}
