package domain

import "time"

// TokenPurpose identifies what an ephemeral token may be redeemed for.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// EphemeralToken is a single-use, time-boxed secret owned by an account.
type EphemeralToken struct {
	ID        string
	AccountID string
	Purpose   TokenPurpose
	// Value is the plaintext handed to the account owner; only ValueHash is persisted.
	Value     string
	ValueHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsValid reports whether the token can still be redeemed at now.
// Once used or expired it never becomes valid again.
func (t *EphemeralToken) IsValid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
