package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/proptrade-auth/internal/domain"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// Resource describes what a capability check is evaluated against.
type Resource struct {
	OwnerID  string
	TenantID *string
}

// Policy decides whether a principal may act on a resource.
type Policy interface {
	Allows(principal *Principal, resource Resource) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(principal *Principal, resource Resource) bool

// Allows implements Policy.
func (f PolicyFunc) Allows(principal *Principal, resource Resource) bool {
	return f(principal, resource)
}

// HasRole allows principals holding one of the roles.
func HasRole(roles ...domain.Role) Policy {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return PolicyFunc(func(p *Principal, _ Resource) bool {
		_, ok := allowed[p.Account.Role]
		return ok
	})
}

// IsOwner allows the account the resource belongs to.
func IsOwner() Policy {
	return PolicyFunc(func(p *Principal, r Resource) bool {
		return r.OwnerID != "" && p.Account.ID == r.OwnerID
	})
}

// SameTenant allows principals of the resource's tenant. Principals without
// a tenant operate platform-wide.
func SameTenant() Policy {
	return PolicyFunc(func(p *Principal, r Resource) bool {
		if p.Account.TenantID == nil {
			return true
		}
		return r.TenantID != nil && *r.TenantID == *p.Account.TenantID
	})
}

// IsVerified allows principals whose email has been verified.
func IsVerified() Policy {
	return PolicyFunc(func(p *Principal, _ Resource) bool {
		return p.Account.Verified
	})
}

// AllOf requires every policy to allow.
func AllOf(policies ...Policy) Policy {
	return PolicyFunc(func(p *Principal, r Resource) bool {
		for _, policy := range policies {
			if !policy.Allows(p, r) {
				return false
			}
		}
		return true
	})
}

// AnyOf requires at least one policy to allow.
func AnyOf(policies ...Policy) Policy {
	return PolicyFunc(func(p *Principal, r Resource) bool {
		for _, policy := range policies {
			if policy.Allows(p, r) {
				return true
			}
		}
		return false
	})
}

// Authorize evaluates policy and returns FORBIDDEN on denial.
func Authorize(principal *Principal, resource Resource, policy Policy) error {
	if principal == nil || principal.Account == nil || !policy.Allows(principal, resource) {
		return apperrors.NewForbidden("insufficient permissions")
	}
	return nil
}

// Require guards a route with a resource-independent policy.
func Require(policy Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := Authorize(principal, Resource{}, policy); err != nil {
			return err
		}
		return c.Next()
	}
}
