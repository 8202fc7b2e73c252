package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Token failure reasons reported in INVALID_TOKEN details.
const (
	ReasonExpired     = "expired"
	ReasonMalformed   = "malformed_or_tampered"
	ReasonWrongKind   = "wrong_kind"
	ReasonBlacklisted = "blacklisted"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so errors.Is works
// against the taxonomy sentinels regardless of details.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Auth taxonomy. Compare with errors.Is; never mutate these values.
var (
	ErrDuplicateAccount      = NewDomainError("DUPLICATE_ACCOUNT", "account already exists", http.StatusConflict, nil)
	ErrInvalidCredentials    = NewDomainError("INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized, nil)
	ErrAccountDisabled       = NewDomainError("ACCOUNT_DISABLED", "account is disabled", http.StatusForbidden, nil)
	ErrInvalidTwoFactorCode  = NewDomainError("INVALID_TWO_FACTOR_CODE", "invalid two-factor code", http.StatusUnauthorized, nil)
	ErrTwoFactorEnabled      = NewDomainError("TWO_FACTOR_ALREADY_ENABLED", "two-factor authentication already enabled", http.StatusConflict, nil)
	ErrNoSecretGenerated     = NewDomainError("TWO_FACTOR_NOT_INITIALIZED", "two-factor secret not generated", http.StatusConflict, nil)
	ErrInvalidToken          = NewDomainError("INVALID_TOKEN", "invalid token", http.StatusUnauthorized, nil)
	ErrTokenInvalid          = NewDomainError("TOKEN_INVALID", "invalid or expired token", http.StatusBadRequest, nil)
	ErrRevocationUnavailable = NewDomainError("REVOCATION_UNAVAILABLE", "token revocation unavailable", http.StatusServiceUnavailable, nil)
	ErrRateLimited           = NewDomainError("RATE_LIMITED", "too many attempts, try again later", http.StatusTooManyRequests, nil)
	ErrConflict              = NewDomainError("CONFLICT", "account was modified concurrently, retry", http.StatusConflict, nil)
	ErrForbidden             = NewDomainError("FORBIDDEN", "forbidden", http.StatusForbidden, nil)
	ErrNotFound              = NewDomainError("NOT_FOUND", "not found", http.StatusNotFound, nil)
	ErrValidation            = NewDomainError("VALIDATION_FAILED", "validation failed", http.StatusBadRequest, nil)
	ErrInternal              = NewDomainError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, nil)
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(ErrValidation.Code, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       ErrNotFound.Code,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(ErrForbidden.Code, message, http.StatusForbidden, nil)
}

// NewInvalidToken reports a session token failure with its reason.
func NewInvalidToken(reason string) error {
	return &DomainError{
		Code:       ErrInvalidToken.Code,
		Message:    ErrInvalidToken.Message,
		HTTPStatus: http.StatusUnauthorized,
		Details:    map[string]any{"reason": reason},
	}
}

// NewRevocationUnavailable keeps the registry failure for logs only.
func NewRevocationUnavailable(err error) error {
	return &DomainError{
		Code:       ErrRevocationUnavailable.Code,
		Message:    ErrRevocationUnavailable.Message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       ErrInternal.Code,
		Message:    ErrInternal.Message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// TokenReason extracts the INVALID_TOKEN reason, or "" for other errors.
func TokenReason(err error) string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != ErrInvalidToken.Code {
		return ""
	}
	reason, _ := domainErr.Details["reason"].(string)
	return reason
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       ErrInternal.Code,
		Message:    ErrInternal.Message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
