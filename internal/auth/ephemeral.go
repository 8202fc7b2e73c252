package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/proptrade-auth/internal/domain"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// 256 bits of entropy, URL-safe.
const ephemeralTokenBytes = 32

// EphemeralTokenOptions configures default lifetimes and reissue behavior.
type EphemeralTokenOptions struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	// RevokePrior invalidates outstanding tokens of the same purpose on issue.
	RevokePrior bool
}

// EphemeralTokenStore issues and redeems single-use email verification and
// password reset tokens.
type EphemeralTokenStore struct {
	tokens   repository.EphemeralTokenRepository
	accounts repository.AccountRepository
	clock    clockwork.Clock
	opts     EphemeralTokenOptions
}

// NewEphemeralTokenStore constructs the store.
func NewEphemeralTokenStore(tokens repository.EphemeralTokenRepository, accounts repository.AccountRepository, clock clockwork.Clock, opts EphemeralTokenOptions) *EphemeralTokenStore {
	if opts.EmailVerificationTTL <= 0 {
		opts.EmailVerificationTTL = 24 * time.Hour
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EphemeralTokenStore{tokens: tokens, accounts: accounts, clock: clock, opts: opts}
}

// Issue creates a fresh token for the account. A zero ttl selects the
// purpose default.
func (s *EphemeralTokenStore) Issue(ctx context.Context, accountID string, purpose domain.TokenPurpose, ttl time.Duration) (*domain.EphemeralToken, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL(purpose)
	}
	value, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if s.opts.RevokePrior {
		if _, err := s.tokens.InvalidateOutstanding(ctx, accountID, purpose, now); err != nil {
			return nil, fmt.Errorf("invalidate outstanding %s tokens: %w", purpose, err)
		}
	}

	token := &domain.EphemeralToken{
		AccountID: accountID,
		Purpose:   purpose,
		Value:     value,
		ValueHash: HashTokenValue(value),
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("persist %s token: %w", purpose, err)
	}
	return token, nil
}

// Redeem consumes the token and returns its owner. Unknown, used, expired or
// wrong-purpose tokens all fail with TOKEN_INVALID; at most one concurrent
// redemption of the same value succeeds.
func (s *EphemeralTokenStore) Redeem(ctx context.Context, value string, purpose domain.TokenPurpose) (*domain.Account, error) {
	if value == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	accountID, err := s.tokens.Consume(ctx, HashTokenValue(value), purpose, s.clock.Now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("consume %s token: %w", purpose, err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("load token owner: %w", err)
	}
	return account, nil
}

// PurgeExpired removes tokens that expired before now.
func (s *EphemeralTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.clock.Now())
}

func (s *EphemeralTokenStore) defaultTTL(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.PurposePasswordReset {
		return s.opts.PasswordResetTTL
	}
	return s.opts.EmailVerificationTTL
}

// HashTokenValue is the lookup key under which a token value is persisted.
func HashTokenValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buf := make([]byte, ephemeralTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
