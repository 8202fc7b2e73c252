package service

import (
	"net/mail"
	"strings"

	"github.com/spec-kit/proptrade-auth/internal/domain"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

const maxNameLength = 100

// validateEmail accepts a bare address and returns it normalized.
func validateEmail(email string) (string, error) {
	normalized := domain.NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || !strings.Contains(normalized[strings.LastIndex(normalized, "@")+1:], ".") {
		return "", apperrors.NewValidationError("invalid email address", map[string]any{"field": "email"})
	}
	return normalized, nil
}

func validateName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxNameLength {
		return apperrors.NewValidationError(field+" is required", map[string]any{"field": field})
	}
	return nil
}
