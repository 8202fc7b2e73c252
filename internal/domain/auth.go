package domain

import "time"

// TokenKind differentiates session tokens; it is part of the signed payload.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
	// TokenKindTwoFactorPending proves the password step of a 2FA login.
	TokenKindTwoFactorPending TokenKind = "mfa_pending"
)

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	TokenID   string
	Subject   string
	Email     string
	Role      Role
	TenantID  *string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is what a completed login hands back to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
