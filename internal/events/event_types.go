package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered      EventType = "account_registered"
	EventVerificationRequested  EventType = "verification_requested"
	EventAccountVerified        EventType = "account_verified"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordChanged        EventType = "password_changed"
)

// Event represents a domain event emitted by services. Payloads may carry
// plaintext ephemeral tokens and must never be logged.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"-"`
}

// Recipient identifies who a notification is addressed to.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Recipient
	TenantID *string `json:"tenant_id,omitempty"`
}

// VerificationRequestedPayload payload.
type VerificationRequestedPayload struct {
	Recipient
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountVerifiedPayload payload.
type AccountVerifiedPayload struct {
	Recipient
}

// PasswordResetRequestedPayload payload.
type PasswordResetRequestedPayload struct {
	Recipient
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordChangeReason tells a self-service change apart from a reset.
type PasswordChangeReason string

const (
	PasswordChangedByReset PasswordChangeReason = "reset"
	PasswordChangedByUser  PasswordChangeReason = "change"
)

// PasswordChangedPayload payload.
type PasswordChangedPayload struct {
	Recipient
	Reason PasswordChangeReason `json:"reason"`
}
