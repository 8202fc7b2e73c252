package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/config"
	"github.com/spec-kit/proptrade-auth/internal/domain"
	"github.com/spec-kit/proptrade-auth/internal/events"
	"github.com/spec-kit/proptrade-auth/internal/ratelimit"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

const backgroundTimeout = 10 * time.Second

// AuthService coordinates registration, login, session and recovery flows.
type AuthService struct {
	accounts    repository.AccountRepository
	passwords   *auth.PasswordManager
	totp        *auth.TOTPManager
	tokens      *auth.TokenManager
	revocations auth.TokenBlacklist
	ephemeral   *auth.EphemeralTokenStore
	limiter     *ratelimit.Limiter
	dispatcher  events.Dispatcher
	clock       clockwork.Clock
	logger      *zap.Logger
	failOpen    bool
	tasks       sync.WaitGroup
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Accounts    repository.AccountRepository
	Passwords   *auth.PasswordManager
	TOTP        *auth.TOTPManager
	Tokens      *auth.TokenManager
	Revocations auth.TokenBlacklist
	Ephemeral   *auth.EphemeralTokenStore
	Limiter     *ratelimit.Limiter
	Dispatcher  events.Dispatcher
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		accounts:    deps.Accounts,
		passwords:   deps.Passwords,
		totp:        deps.TOTP,
		tokens:      deps.Tokens,
		revocations: deps.Revocations,
		ephemeral:   deps.Ephemeral,
		limiter:     deps.Limiter,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		failOpen:    cfg.RevocationFailOpen,
	}
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	TenantID  *string
}

// RegisterResult is the created account and its verification token.
type RegisterResult struct {
	Account           *domain.Account
	VerificationToken *domain.EphemeralToken
}

// LoginResult is either a session or a pending second factor.
type LoginResult struct {
	Account                 *domain.Account
	Tokens                  *domain.TokenPair
	RequiresTwoFactor       bool
	TwoFactorToken          string
	TwoFactorTokenExpiresAt time.Time
}

// TwoFactorSetup is returned when enrollment starts.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
}

// Register creates an unverified account and issues its verification token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validateName("first_name", in.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("last_name", in.LastName); err != nil {
		return nil, err
	}
	if err := auth.ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrDuplicateAccount
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	account := domain.NewAccount(email, hash, in.FirstName, in.LastName, in.TenantID)
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account registered", zap.String("account_id", account.ID))
	s.publish(ctx, events.EventAccountRegistered, account.ID, events.AccountRegisteredPayload{
		Recipient: recipient(account),
		TenantID:  account.TenantID,
	})

	result := &RegisterResult{Account: account}
	token, err := s.issueVerification(ctx, account)
	if err != nil {
		// The account exists; the owner can ask for another link.
		s.logger.Error("issue verification token", zap.String("account_id", account.ID), zap.Error(err))
		return result, nil
	}
	result.VerificationToken = token
	return result, nil
}

// Login performs the password step. Accounts with two-factor enabled get a
// short-lived pending ticket instead of a session.
func (s *AuthService) Login(ctx context.Context, emailInput, password, ip string) (*LoginResult, error) {
	email := domain.NormalizeEmail(emailInput)
	if err := s.limiter.Reserve(ctx, ratelimit.ScopeLogin, email); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}
		s.passwords.VerifyDummy(password)
		return nil, apperrors.ErrInvalidCredentials
	}
	if !s.passwords.Verify(password, account.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !account.Active {
		return nil, apperrors.ErrAccountDisabled
	}
	s.limiter.Reset(ctx, ratelimit.ScopeLogin, email)

	if account.TwoFactorEnabled {
		ticket, exp, err := s.tokens.IssueTwoFactorPending(account)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			Account:                 account,
			RequiresTwoFactor:       true,
			TwoFactorToken:          ticket,
			TwoFactorTokenExpiresAt: exp,
		}, nil
	}
	return s.completeLogin(ctx, account, ip)
}

// LoginTwoFactor completes a login started by Login using a TOTP code.
func (s *AuthService) LoginTwoFactor(ctx context.Context, ticket, code, ip string) (*LoginResult, error) {
	claims, err := s.tokens.Verify(ticket, domain.TokenKindTwoFactorPending)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.limiter.Reserve(ctx, ratelimit.ScopeTwoFactor, claims.Subject); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return nil, apperrors.ErrAccountDisabled
	}
	if !account.TwoFactorEnabled || !account.HasTwoFactorSecret() || !s.totp.Verify(*account.TwoFactorSecret, code) {
		return nil, apperrors.ErrInvalidTwoFactorCode
	}
	s.limiter.Reset(ctx, ratelimit.ScopeTwoFactor, claims.Subject)

	// The ticket completes exactly one login; whoever claims it first wins.
	claimed, err := s.revocations.Claim(ctx, ticket, s.tokens.RemainingLifetime(claims))
	if err != nil {
		s.logger.Error("two-factor ticket claim failed", zap.String("account_id", account.ID), zap.Error(err))
		return nil, apperrors.NewRevocationUnavailable(err)
	}
	if !claimed {
		return nil, apperrors.NewInvalidToken(apperrors.ReasonBlacklisted)
	}
	return s.completeLogin(ctx, account, ip)
}

func (s *AuthService) completeLogin(ctx context.Context, account *domain.Account, ip string) (*LoginResult, error) {
	now := s.clock.Now()
	if err := s.accounts.RecordLogin(ctx, account.ID, account.PasswordHash, now, ip); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return nil, s.staleLogin(ctx, account.ID)
		}
		return nil, fmt.Errorf("record login: %w", err)
	}
	account.RecordLogin(now, ip)
	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login succeeded", zap.String("account_id", account.ID))
	return &LoginResult{Account: account, Tokens: pair}, nil
}

// staleLogin maps a login whose account was deactivated or re-keyed after
// the password check.
func (s *AuthService) staleLogin(ctx context.Context, id string) error {
	s.logger.Info("account changed during login", zap.String("account_id", id))
	current, err := s.accounts.GetByID(ctx, id)
	if err == nil && !current.Active {
		return apperrors.ErrAccountDisabled
	}
	return apperrors.ErrInvalidCredentials
}

// Authenticate implements auth.Authenticator: signature, expiry and kind,
// then the blacklist, then the account itself.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error) {
	claims, err := s.tokens.Verify(accessToken, domain.TokenKindAccess)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, accessToken); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("account not found")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return nil, apperrors.ErrAccountDisabled
	}
	return &auth.Principal{Account: account, Claims: claims, Token: accessToken}, nil
}

// Logout revokes the caller's access token and, when supplied, a refresh
// token belonging to the same account.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal, refreshToken string) error {
	var refreshClaims *domain.SessionClaims
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		claims, err := s.tokens.Verify(refreshToken, domain.TokenKindRefresh)
		switch {
		case err == nil:
			if claims.Subject != principal.Account.ID {
				return apperrors.NewForbidden("refresh token belongs to another account")
			}
			refreshClaims = claims
		case apperrors.TokenReason(err) == apperrors.ReasonExpired:
			// Nothing left to revoke.
		default:
			return err
		}
	}

	if err := s.revocations.Blacklist(ctx, principal.Token, s.tokens.RemainingLifetime(principal.Claims)); err != nil {
		s.logger.Error("logout revocation failed", zap.String("account_id", principal.Account.ID), zap.Error(err))
		return apperrors.NewRevocationUnavailable(err)
	}
	if refreshClaims != nil {
		if err := s.revocations.Blacklist(ctx, refreshToken, s.tokens.RemainingLifetime(refreshClaims)); err != nil {
			s.logger.Error("logout revocation failed", zap.String("account_id", principal.Account.ID), zap.Error(err))
			return apperrors.NewRevocationUnavailable(err)
		}
	}
	s.logger.Info("logout", zap.String("account_id", principal.Account.ID))
	return nil
}

// Refresh mints a new access token. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.checkRevoked(ctx, refreshToken); err != nil {
		return "", time.Time{}, err
	}
	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, apperrors.NewInvalidToken(apperrors.ReasonMalformed)
		}
		return "", time.Time{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return "", time.Time{}, apperrors.ErrAccountDisabled
	}
	return s.tokens.IssueAccess(account)
}

// EnableTwoFactor stages a fresh secret and returns it with its enrollment URI.
// Two-factor stays disabled until ConfirmTwoFactor.
func (s *AuthService) EnableTwoFactor(ctx context.Context, principal *auth.Principal) (*TwoFactorSetup, error) {
	account, err := s.reload(ctx, principal)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, apperrors.ErrTwoFactorEnabled
	}
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := s.totp.ProvisioningURI(secret, account.Email)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.StageTwoFactorSecret(ctx, account.ID, secret); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return nil, apperrors.ErrTwoFactorEnabled
		}
		return nil, fmt.Errorf("stage two-factor secret: %w", err)
	}
	return &TwoFactorSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmTwoFactor proves possession of the staged secret and enables two-factor.
func (s *AuthService) ConfirmTwoFactor(ctx context.Context, principal *auth.Principal, code string) error {
	account, err := s.reload(ctx, principal)
	if err != nil {
		return err
	}
	if err := account.CanConfirmTwoFactor(); err != nil {
		return err
	}
	if err := s.limiter.Reserve(ctx, ratelimit.ScopeTwoFactor, account.ID); err != nil {
		return err
	}
	if !s.totp.Verify(*account.TwoFactorSecret, code) {
		return apperrors.ErrInvalidTwoFactorCode
	}
	s.limiter.Reset(ctx, ratelimit.ScopeTwoFactor, account.ID)

	// Only the secret that was just proven may be enabled.
	if err := s.accounts.EnableTwoFactor(ctx, account.ID, *account.TwoFactorSecret); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("enable two-factor: %w", err)
	}
	s.logger.Info("two-factor enabled", zap.String("account_id", account.ID))
	return nil
}

// DisableTwoFactor turns two-factor off after re-checking the password.
func (s *AuthService) DisableTwoFactor(ctx context.Context, principal *auth.Principal, password string) error {
	account, err := s.reload(ctx, principal)
	if err != nil {
		return err
	}
	if !s.passwords.Verify(password, account.PasswordHash) {
		return apperrors.ErrInvalidCredentials
	}
	if err := s.accounts.DisableTwoFactor(ctx, account.ID, account.PasswordHash); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return apperrors.ErrInvalidCredentials
		}
		return fmt.Errorf("disable two-factor: %w", err)
	}
	s.logger.Info("two-factor disabled", zap.String("account_id", account.ID))
	return nil
}

// VerifyEmail redeems an email verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	account, err := s.ephemeral.Redeem(ctx, token, domain.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	firstTime, err := s.accounts.MarkVerified(ctx, account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	switch {
	case firstTime:
		account.MarkVerified(now)
		s.publish(ctx, events.EventAccountVerified, account.ID, events.AccountVerifiedPayload{Recipient: recipient(account)})
	case !account.Verified:
		// A concurrent redemption got there first.
		if account, err = s.accounts.GetByID(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
	}
	return account, nil
}

// ResendVerification issues a new verification link when the address belongs
// to an unverified account. The lookup runs in the background and its outcome
// is never reported to the caller.
func (s *AuthService) ResendVerification(ctx context.Context, emailInput string) error {
	email := domain.NormalizeEmail(emailInput)
	if err := s.limiter.Reserve(ctx, ratelimit.ScopeResendVerification, email); err != nil {
		return err
	}
	s.background(ctx, func(ctx context.Context) {
		account, err := s.accounts.GetByEmail(ctx, email)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				s.logger.Error("resend verification lookup", zap.Error(err))
			}
			return
		}
		if account.Verified || !account.Active {
			return
		}
		if _, err := s.issueVerification(ctx, account); err != nil {
			s.logger.Error("resend verification", zap.String("account_id", account.ID), zap.Error(err))
		}
	})
	return nil
}

// RequestPasswordReset issues a reset token when the account exists. It
// returns before the lookup so the response is the same either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailInput string) error {
	email := domain.NormalizeEmail(emailInput)
	if err := s.limiter.Reserve(ctx, ratelimit.ScopePasswordReset, email); err != nil {
		return err
	}
	s.background(ctx, func(ctx context.Context) {
		account, err := s.accounts.GetByEmail(ctx, email)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				s.logger.Error("password reset lookup", zap.Error(err))
			}
			return
		}
		if !account.Active {
			return
		}
		token, err := s.ephemeral.Issue(ctx, account.ID, domain.PurposePasswordReset, 0)
		if err != nil {
			s.logger.Error("issue password reset token", zap.String("account_id", account.ID), zap.Error(err))
			return
		}
		s.publish(ctx, events.EventPasswordResetRequested, account.ID, events.PasswordResetRequestedPayload{
			Recipient: recipient(account),
			Token:     token.Value,
			ExpiresAt: token.ExpiresAt,
		})
	})
	return nil
}

// Wait blocks until work started by ResendVerification and
// RequestPasswordReset has finished.
func (s *AuthService) Wait() {
	s.tasks.Wait()
}

// background runs fn detached from the request's cancellation.
func (s *AuthService) background(ctx context.Context, fn func(context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// ResetPassword redeems a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	// Checked first so a rejected password does not burn the token.
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	account, err := s.ephemeral.Redeem(ctx, token, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, account, newPassword, events.PasswordChangedByReset); err != nil {
		return err
	}
	s.limiter.Reset(ctx, ratelimit.ScopeLogin, account.Email)
	return nil
}

// ChangePassword replaces the password of the authenticated account.
func (s *AuthService) ChangePassword(ctx context.Context, principal *auth.Principal, currentPassword, newPassword string) error {
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	account, err := s.reload(ctx, principal)
	if err != nil {
		return err
	}
	if !s.passwords.Verify(currentPassword, account.PasswordHash) {
		return apperrors.ErrInvalidCredentials
	}
	return s.setPassword(ctx, account, newPassword, events.PasswordChangedByUser)
}

// Me returns the current state of the authenticated account.
func (s *AuthService) Me(ctx context.Context, principal *auth.Principal) (*domain.Account, error) {
	return s.reload(ctx, principal)
}

func (s *AuthService) setPassword(ctx context.Context, account *domain.Account, password string, reason events.PasswordChangeReason) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, account.PasswordHash, hash); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("update password: %w", err)
	}
	account.PasswordHash = hash
	s.logger.Info("password changed", zap.String("account_id", account.ID), zap.String("reason", string(reason)))
	s.publish(ctx, events.EventPasswordChanged, account.ID, events.PasswordChangedPayload{
		Recipient: recipient(account),
		Reason:    reason,
	})
	return nil
}

func (s *AuthService) issueVerification(ctx context.Context, account *domain.Account) (*domain.EphemeralToken, error) {
	token, err := s.ephemeral.Issue(ctx, account.ID, domain.PurposeEmailVerification, 0)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventVerificationRequested, account.ID, events.VerificationRequestedPayload{
		Recipient: recipient(account),
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	})
	return token, nil
}

// checkRevoked consults the blacklist. When the registry cannot answer the
// token is rejected unless fail-open was configured.
func (s *AuthService) checkRevoked(ctx context.Context, token string) error {
	revoked, err := s.revocations.IsBlacklisted(ctx, token)
	if err != nil {
		if s.failOpen {
			s.logger.Warn("revocation registry unavailable, trusting token signature", zap.Error(err))
			return nil
		}
		s.logger.Error("revocation registry unavailable", zap.Error(err))
		return apperrors.NewRevocationUnavailable(err)
	}
	if revoked {
		return apperrors.NewInvalidToken(apperrors.ReasonBlacklisted)
	}
	return nil
}

func (s *AuthService) reload(ctx context.Context, principal *auth.Principal) (*domain.Account, error) {
	if principal == nil || principal.Account == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	account, err := s.accounts.GetByID(ctx, principal.Account.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("account not found")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, accountID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Timestamp: s.clock.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func recipient(account *domain.Account) events.Recipient {
	return events.Recipient{Email: account.Email, FirstName: account.FirstName}
}
