// Package authz implements the role and ownership guard. Every decision is
// a pure comparison over already-fetched data: repositories resolve the
// ownership chain to a projection, services look up enrollment, and this
// package only compares.
package authz

import (
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

// Principal is the authenticated actor behind a request. A nil *Principal
// means the request is anonymous.
type Principal struct {
	ID     string
	Role   models.UserRole
	Active bool
}

// IsAdmin reports whether the principal is an active admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Active && p.Role == models.RoleAdmin
}

// Reason tags why a decision denied.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonInactiveAccount Reason = "inactive-account"
	ReasonRoleMismatch    Reason = "role-mismatch"
	ReasonNotOwner        Reason = "not-owner"
	ReasonNotEnrolled     Reason = "not-enrolled"
)

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision tagged with a reason.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err translates a denial into the matching domain error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return appErrors.ErrUnauthenticated
	case ReasonInactiveAccount:
		return appErrors.ErrInactiveAccount
	case ReasonNotOwner:
		return appErrors.ErrNotOwner
	case ReasonNotEnrolled:
		return appErrors.ErrNotEnrolled
	default:
		return appErrors.ErrForbidden
	}
}

// Ownership is the normalized projection of a content entity's ownership
// chain, produced by repository resolvers (module → course,
// lesson → module → course, quiz/assignment → lesson → module → course).
type Ownership struct {
	InstructorID string `db:"instructor_id"`
	CourseID     string `db:"course_id"`
}

func gate(p *Principal) Decision {
	if p == nil || p.ID == "" {
		return Deny(ReasonUnauthenticated)
	}
	if !p.Active {
		return Deny(ReasonInactiveAccount)
	}
	return Allow()
}

// CanMutate decides whether the principal may mutate a content entity:
// admin, or the instructor owning the entity's course.
func CanMutate(p *Principal, own Ownership) Decision {
	if d := gate(p); !d.Allowed {
		return d
	}
	if p.Role == models.RoleAdmin {
		return Allow()
	}
	if p.ID == own.InstructorID {
		return Allow()
	}
	return Deny(ReasonNotOwner)
}

// CanAccessContent decides read/submit access to learning content. Admins
// and the owning instructor always pass; everyone else must hold an active
// enrollment in the derived course.
func CanAccessContent(p *Principal, own Ownership, enrolled bool) Decision {
	if d := gate(p); !d.Allowed {
		return d
	}
	if p.Role == models.RoleAdmin || p.ID == own.InstructorID {
		return Allow()
	}
	if enrolled {
		return Allow()
	}
	return Deny(ReasonNotEnrolled)
}

// CanViewCourse decides course visibility: published courses are public,
// unpublished ones are visible only to the owner or an admin. Callers must
// surface denials as not-found so existence does not leak.
func CanViewCourse(p *Principal, course *models.Course) Decision {
	if course.IsPublished {
		return Allow()
	}
	if p == nil || p.ID == "" {
		return Deny(ReasonNotOwner)
	}
	if p.Role == models.RoleAdmin || p.ID == course.InstructorID {
		return Allow()
	}
	return Deny(ReasonNotOwner)
}
