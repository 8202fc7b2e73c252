package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/domain"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

var (
	// Owners, or support staff and admins of the owner's tenant.
	canViewAccount = auth.AnyOf(
		auth.IsOwner(),
		auth.AllOf(auth.HasRole(domain.RoleAdmin, domain.RoleSupport), auth.SameTenant()),
	)
	// Verified admins of the owner's tenant.
	canDeactivateAccount = auth.AllOf(
		auth.HasRole(domain.RoleAdmin),
		auth.SameTenant(),
		auth.IsVerified(),
	)
)

// AccountService exposes capability-checked account administration.
type AccountService struct {
	accounts repository.AccountRepository
	logger   *zap.Logger
}

// NewAccountService builds the service.
func NewAccountService(accounts repository.AccountRepository, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{accounts: accounts, logger: logger}
}

// Get returns an account the principal may view. Accounts the principal
// may not view are reported exactly like ids that do not exist.
func (s *AccountService) Get(ctx context.Context, principal *auth.Principal, id string) (*domain.Account, error) {
	return s.loadVisible(ctx, principal, id)
}

// Deactivate disables an account in place. Accounts are never deleted.
func (s *AccountService) Deactivate(ctx context.Context, principal *auth.Principal, id string) (*domain.Account, error) {
	account, err := s.loadVisible(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if principal.Account.ID == account.ID {
		return nil, apperrors.NewForbidden("cannot deactivate own account")
	}
	if err := auth.Authorize(principal, resourceOf(account), canDeactivateAccount); err != nil {
		return nil, err
	}

	changed, err := s.accounts.Deactivate(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("deactivate account: %w", err)
	}
	account.Deactivate()
	if changed {
		s.logger.Info("account deactivated",
			zap.String("account_id", account.ID),
			zap.String("actor_id", principal.Account.ID))
	}
	return account, nil
}

func (s *AccountService) loadVisible(ctx context.Context, principal *auth.Principal, id string) (*domain.Account, error) {
	if principal == nil || principal.Account == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	notFound := apperrors.NewNotFound("account", map[string]any{"id": id})
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !canViewAccount.Allows(principal, resourceOf(account)) {
		return nil, notFound
	}
	return account, nil
}

func resourceOf(account *domain.Account) auth.Resource {
	return auth.Resource{OwnerID: account.ID, TenantID: account.TenantID}
}
