package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/proptrade-auth/internal/domain"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// TokenTTLs configures session token lifetimes per kind.
type TokenTTLs struct {
	Access           time.Duration
	Refresh          time.Duration
	TwoFactorPending time.Duration
}

// TokenManager handles issuing and validating signed session tokens.
type TokenManager struct {
	secret []byte
	ttls   TokenTTLs
	clock  clockwork.Clock
	parser *jwt.Parser
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttls TokenTTLs, clock clockwork.Clock) *TokenManager {
	if ttls.Access <= 0 {
		ttls.Access = time.Hour
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = 30 * 24 * time.Hour
	}
	if ttls.TwoFactorPending <= 0 {
		ttls.TwoFactorPending = 5 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenManager{
		secret: []byte(secret),
		ttls:   ttls,
		clock:  clock,
		// Expiry is checked after the signature, against the injected clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Claims describes JWT payload.
type Claims struct {
	Kind     domain.TokenKind `json:"type"`
	Email    string           `json:"email,omitempty"`
	Role     domain.Role      `json:"role,omitempty"`
	TenantID *string          `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueAccess mints a short-lived access token.
func (tm *TokenManager) IssueAccess(account *domain.Account) (string, time.Time, error) {
	return tm.issue(account, domain.TokenKindAccess, tm.ttls.Access)
}

// IssueRefresh mints a long-lived refresh token.
func (tm *TokenManager) IssueRefresh(account *domain.Account) (string, time.Time, error) {
	return tm.issue(account, domain.TokenKindRefresh, tm.ttls.Refresh)
}

// IssueTwoFactorPending mints the ticket proving a completed password step.
func (tm *TokenManager) IssueTwoFactorPending(account *domain.Account) (string, time.Time, error) {
	return tm.issue(account, domain.TokenKindTwoFactorPending, tm.ttls.TwoFactorPending)
}

// IssuePair mints an access and a refresh token together.
func (tm *TokenManager) IssuePair(account *domain.Account) (*domain.TokenPair, error) {
	access, accessExp, err := tm.IssueAccess(account)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tm.IssueRefresh(account)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (tm *TokenManager) issue(account *domain.Account, kind domain.TokenKind, ttl time.Duration) (string, time.Time, error) {
	if len(tm.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret not configured")
	}
	now := tm.clock.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Kind:     kind,
		Role:     account.Role,
		TenantID: account.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if kind == domain.TokenKindAccess {
		claims.Email = account.Email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature, expiry and kind, in that order, and returns the
// claims only when all three pass.
func (tm *TokenManager) Verify(tokenStr string, expected domain.TokenKind) (*domain.SessionClaims, error) {
	claims := &Claims{}
	parsed, err := tm.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, apperrors.NewInvalidToken(apperrors.ReasonMalformed)
	}

	if !tm.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, apperrors.NewInvalidToken(apperrors.ReasonExpired)
	}
	if claims.Kind != expected {
		return nil, apperrors.NewInvalidToken(apperrors.ReasonWrongKind)
	}

	out := &domain.SessionClaims{
		TokenID:   claims.ID,
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// RemainingLifetime is the time left before the claims expire.
func (tm *TokenManager) RemainingLifetime(claims *domain.SessionClaims) time.Duration {
	return claims.ExpiresAt.Sub(tm.clock.Now())
}
