package authz

import "github.com/lumenlms/lms-api/internal/models"

// RoleRequirement is a tagged role gate for an action: either a plain role
// set, or a role set with a self exception for the resource owner. The self
// exception is a distinct rule, not a role.
type RoleRequirement struct {
	roles     []models.UserRole
	allowSelf bool
}

// AnyOf allows principals whose role is in the given set.
func AnyOf(roles ...models.UserRole) RoleRequirement {
	return RoleRequirement{roles: roles}
}

// SelfOrRoles allows the given roles, plus any principal acting on a
// resource it owns.
func SelfOrRoles(roles ...models.UserRole) RoleRequirement {
	return RoleRequirement{roles: roles, allowSelf: true}
}

// AllowsSelf reports whether the requirement carries a self exception.
func (r RoleRequirement) AllowsSelf() bool {
	return r.allowSelf
}

// Evaluate decides whether the principal satisfies the requirement for a
// resource owned by ownerID. ownerID is ignored unless the requirement
// carries a self exception.
func (r RoleRequirement) Evaluate(p *Principal, ownerID string) Decision {
	if d := gate(p); !d.Allowed {
		return d
	}
	for _, role := range r.roles {
		if p.Role == role {
			return Allow()
		}
	}
	if r.allowSelf && ownerID != "" && p.ID == ownerID {
		return Allow()
	}
	return Deny(ReasonRoleMismatch)
}
