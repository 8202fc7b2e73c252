package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/domain"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

func seedAccount(t *testing.T, repo repository.AccountRepository, email string, role domain.Role, tenant *string, verified bool) *domain.Account {
	t.Helper()
	acct := domain.NewAccount(email, "hash", "F", "L", tenant)
	acct.Role = role
	acct.Verified = verified
	require.NoError(t, repo.Create(context.Background(), acct))
	return acct
}

func asPrincipal(acct *domain.Account) *auth.Principal {
	return &auth.Principal{Account: acct}
}

func TestAccountService_Get(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryAccountRepository()
	svc := NewAccountService(repo, nil)
	acme, globex := "acme", "globex"

	user := seedAccount(t, repo, "u@acme.com", domain.RoleUser, &acme, false)
	other := seedAccount(t, repo, "o@acme.com", domain.RoleUser, &acme, false)
	support := seedAccount(t, repo, "s@acme.com", domain.RoleSupport, &acme, false)
	foreignAdmin := seedAccount(t, repo, "a@globex.com", domain.RoleAdmin, &globex, true)
	platformAdmin := seedAccount(t, repo, "root@x.com", domain.RoleAdmin, nil, true)

	got, err := svc.Get(ctx, asPrincipal(user), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Get(ctx, asPrincipal(other), user.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.Get(ctx, asPrincipal(support), user.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, asPrincipal(foreignAdmin), user.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.Get(ctx, asPrincipal(platformAdmin), user.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, asPrincipal(user), "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.Get(ctx, asPrincipal(user), "6f1c1a52-3d5e-4a7b-9c1d-2e3f4a5b6c7d")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Get(ctx, nil, user.ID)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)
}

func TestAccountService_HiddenAccountsLookMissing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryAccountRepository()
	svc := NewAccountService(repo, nil)
	acme, globex := "acme", "globex"

	target := seedAccount(t, repo, "u@acme.com", domain.RoleUser, &acme, false)
	caller := seedAccount(t, repo, "a@globex.com", domain.RoleAdmin, &globex, true)
	unknown := "6f1c1a52-3d5e-4a7b-9c1d-2e3f4a5b6c7d"

	for _, call := range []func(string) (*domain.Account, error){
		func(id string) (*domain.Account, error) { return svc.Get(ctx, asPrincipal(caller), id) },
		func(id string) (*domain.Account, error) { return svc.Deactivate(ctx, asPrincipal(caller), id) },
	} {
		_, errExisting := call(target.ID)
		_, errUnknown := call(unknown)

		existing := apperrors.ToDomainError(errExisting)
		missing := apperrors.ToDomainError(errUnknown)
		assert.Equal(t, missing.Code, existing.Code)
		assert.Equal(t, missing.HTTPStatus, existing.HTTPStatus)
		assert.Equal(t, missing.Message, existing.Message)
	}

	stored, err := repo.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
}

func TestAccountService_Deactivate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryAccountRepository()
	svc := NewAccountService(repo, nil)
	acme := "acme"

	user := seedAccount(t, repo, "u@acme.com", domain.RoleUser, &acme, false)
	support := seedAccount(t, repo, "s@acme.com", domain.RoleSupport, &acme, true)
	unverifiedAdmin := seedAccount(t, repo, "new@acme.com", domain.RoleAdmin, &acme, false)
	admin := seedAccount(t, repo, "a@acme.com", domain.RoleAdmin, &acme, true)

	_, err := svc.Deactivate(ctx, asPrincipal(support), user.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "support may view but not deactivate")
	_, err = svc.Deactivate(ctx, asPrincipal(unverifiedAdmin), user.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = svc.Deactivate(ctx, asPrincipal(admin), admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := svc.Deactivate(ctx, asPrincipal(admin), user.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	again, err := svc.Deactivate(ctx, asPrincipal(admin), user.ID)
	require.NoError(t, err)
	assert.False(t, again.Active)

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active, "deactivated in place, not deleted")
}
