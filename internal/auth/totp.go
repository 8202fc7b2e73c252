package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPManager handles authenticator-app secrets and codes.
type TOTPManager struct {
	issuer string
	window uint
	clock  clockwork.Clock
}

// NewTOTPManager builds a manager accepting codes within ±window steps.
func NewTOTPManager(issuer string, window uint, clock clockwork.Clock) *TOTPManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TOTPManager{issuer: issuer, window: window, clock: clock}
}

// GenerateSecret returns a fresh base32 secret (160 bits).
func (m *TOTPManager) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ProvisioningURI formats the otpauth:// enrollment URI for secret.
func (m *TOTPManager) ProvisioningURI(secret, accountLabel string) (string, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountLabel,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("build provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// Verify reports whether code is valid for the current step or within the
// configured window around it.
func (m *TOTPManager) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, m.clock.Now().UTC(), m.opts())
	return err == nil && ok
}

func (m *TOTPManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      m.window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
