package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/proptrade-auth/internal/config"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

const (
	argon2Prefix      = "$argon2id$"
	argon2SaltLength  = 16
	argon2KeyLength   = 32
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes; refuse it instead of truncating.
	maxPasswordBytes   = 72
	passwordSpecials   = `!@#$%^&*(),.?":{}|<>`
	dummyPasswordInput = "dummy-password-for-timing"
)

var errMalformedHash = errors.New("malformed password hash")

// Argon2Params tunes argon2id hashing.
type Argon2Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
}

// PasswordManager hashes and verifies password credentials. New hashes use
// the configured algorithm; verification accepts both bcrypt and argon2id.
type PasswordManager struct {
	algorithm  string
	bcryptCost int
	argon      Argon2Params

	dummyOnce sync.Once
	dummyHash string
}

// NewPasswordManager builds a manager from auth configuration.
func NewPasswordManager(cfg config.AuthConfig) *PasswordManager {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordManager{
		algorithm:  cfg.PasswordHasher,
		bcryptCost: cost,
		argon: Argon2Params{
			Memory:  cfg.Argon2Memory,
			Time:    cfg.Argon2Time,
			Threads: cfg.Argon2Threads,
		},
	}
}

// Hash derives a salted slow hash of the plaintext.
func (p *PasswordManager) Hash(plain string) (string, error) {
	if p.algorithm == config.HasherArgon2id {
		return hashArgon2id(plain, p.argon)
	}
	return HashPassword(plain, p.bcryptCost)
}

// Verify reports whether plain matches the stored hash.
func (p *PasswordManager) Verify(plain, stored string) bool {
	if strings.HasPrefix(stored, argon2Prefix) {
		ok, err := verifyArgon2id(plain, stored)
		return err == nil && ok
	}
	return ComparePassword(stored, plain) == nil
}

// VerifyDummy burns the same work as a real verification so that lookups of
// unknown accounts are not distinguishable by latency.
func (p *PasswordManager) VerifyDummy(plain string) {
	p.dummyOnce.Do(func() {
		hash, err := p.Hash(dummyPasswordInput)
		if err == nil {
			p.dummyHash = hash
		}
	})
	if p.dummyHash != "" {
		_ = p.Verify(plain, p.dummyHash)
	}
}

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

func hashArgon2id(plain string, params Argon2Params) (string, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, params.Time, params.Memory, params.Threads, argon2KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		params.Memory,
		params.Time,
		params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(plain, encoded string) (bool, error) {
	// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errMalformedHash
	}
	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return false, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, errMalformedHash
	}

	got := argon2.IDKey([]byte(plain), salt, params.Time, params.Memory, params.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ValidatePasswordStrength enforces the password policy for new passwords.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.NewValidationError(fmt.Sprintf("password must be at least %d characters long", minPasswordLength), nil)
	}
	if len(password) > maxPasswordBytes {
		return apperrors.NewValidationError(fmt.Sprintf("password must be at most %d bytes long", maxPasswordBytes), nil)
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return apperrors.NewValidationError("password must contain at least one uppercase letter", nil)
	case !lower:
		return apperrors.NewValidationError("password must contain at least one lowercase letter", nil)
	case !digit:
		return apperrors.NewValidationError("password must contain at least one number", nil)
	case !strings.ContainsAny(password, passwordSpecials):
		return apperrors.NewValidationError("password must contain at least one special character", nil)
	}
	return nil
}
