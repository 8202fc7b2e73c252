package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/proptrade-auth/internal/domain"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

func principalFor(id string, role domain.Role, tenant *string, verified bool) *Principal {
	return &Principal{Account: &domain.Account{ID: id, Role: role, TenantID: tenant, Verified: verified}}
}

func strPtr(s string) *string { return &s }

func TestPolicies(t *testing.T) {
	acme, globex := strPtr("acme"), strPtr("globex")
	admin := principalFor("adm", domain.RoleAdmin, acme, true)
	platformAdmin := principalFor("root", domain.RoleAdmin, nil, true)
	user := principalFor("usr", domain.RoleUser, acme, false)

	own := Resource{OwnerID: "usr", TenantID: acme}
	foreign := Resource{OwnerID: "other", TenantID: globex}

	assert.True(t, HasRole(domain.RoleAdmin, domain.RoleSupport).Allows(admin, own))
	assert.False(t, HasRole(domain.RoleAdmin).Allows(user, own))

	assert.True(t, IsOwner().Allows(user, own))
	assert.False(t, IsOwner().Allows(user, foreign))
	assert.False(t, IsOwner().Allows(user, Resource{}))

	assert.True(t, SameTenant().Allows(admin, own))
	assert.False(t, SameTenant().Allows(admin, foreign))
	assert.False(t, SameTenant().Allows(admin, Resource{OwnerID: "x"}))
	assert.True(t, SameTenant().Allows(platformAdmin, foreign))

	assert.True(t, IsVerified().Allows(admin, own))
	assert.False(t, IsVerified().Allows(user, own))

	tenantAdmin := AllOf(HasRole(domain.RoleAdmin), SameTenant(), IsVerified())
	assert.True(t, tenantAdmin.Allows(admin, own))
	assert.False(t, tenantAdmin.Allows(admin, foreign))
	assert.False(t, tenantAdmin.Allows(user, own))

	ownerOrAdmin := AnyOf(IsOwner(), tenantAdmin)
	assert.True(t, ownerOrAdmin.Allows(user, own))
	assert.False(t, ownerOrAdmin.Allows(user, foreign))
	assert.False(t, AnyOf().Allows(admin, own))
	assert.True(t, AllOf().Allows(user, own))
}

func TestAuthorize(t *testing.T) {
	user := principalFor("usr", domain.RoleUser, nil, true)

	assert.NoError(t, Authorize(user, Resource{OwnerID: "usr"}, IsOwner()))
	assert.ErrorIs(t, Authorize(user, Resource{OwnerID: "x"}, IsOwner()), apperrors.ErrForbidden)
	assert.ErrorIs(t, Authorize(nil, Resource{}, AllOf()), apperrors.ErrForbidden)
}
