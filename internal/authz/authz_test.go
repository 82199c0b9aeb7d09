package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

func instructor(id string) *Principal {
	return &Principal{ID: id, Role: models.RoleInstructor, Active: true}
}

func student(id string) *Principal {
	return &Principal{ID: id, Role: models.RoleStudent, Active: true}
}

func admin(id string) *Principal {
	return &Principal{ID: id, Role: models.RoleAdmin, Active: true}
}

func TestCanMutateOwnerChain(t *testing.T) {
	own := Ownership{InstructorID: "i1", CourseID: "c1"}

	assert.True(t, CanMutate(instructor("i1"), own).Allowed)

	d := CanMutate(instructor("i2"), own)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	d = CanMutate(student("s1"), own)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)
}

func TestCanMutateAdminUnconditional(t *testing.T) {
	own := Ownership{InstructorID: "i1", CourseID: "c1"}
	assert.True(t, CanMutate(admin("a1"), own).Allowed)
}

func TestCanMutateAnonymousAndInactive(t *testing.T) {
	own := Ownership{InstructorID: "i1", CourseID: "c1"}

	d := CanMutate(nil, own)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnauthenticated, d.Reason)

	inactive := &Principal{ID: "i1", Role: models.RoleInstructor, Active: false}
	d = CanMutate(inactive, own)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInactiveAccount, d.Reason)
}

func TestCanAccessContentEnrollmentGate(t *testing.T) {
	own := Ownership{InstructorID: "i1", CourseID: "c1"}

	assert.True(t, CanAccessContent(student("s1"), own, true).Allowed)

	d := CanAccessContent(student("s1"), own, false)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotEnrolled, d.Reason)

	// Owner and admin bypass the enrollment gate.
	assert.True(t, CanAccessContent(instructor("i1"), own, false).Allowed)
	assert.True(t, CanAccessContent(admin("a1"), own, false).Allowed)
}

func TestCanViewCourseVisibility(t *testing.T) {
	unpublished := &models.Course{ID: "c1", InstructorID: "i1", IsPublished: false}
	published := &models.Course{ID: "c2", InstructorID: "i1", IsPublished: true}

	assert.True(t, CanViewCourse(nil, published).Allowed)
	assert.True(t, CanViewCourse(instructor("i1"), unpublished).Allowed)
	assert.True(t, CanViewCourse(admin("a1"), unpublished).Allowed)

	assert.False(t, CanViewCourse(student("s1"), unpublished).Allowed)
	assert.False(t, CanViewCourse(instructor("i2"), unpublished).Allowed)
	assert.False(t, CanViewCourse(nil, unpublished).Allowed)
}

func TestRoleRequirementAnyOf(t *testing.T) {
	req := AnyOf(models.RoleAdmin)

	assert.True(t, req.Evaluate(admin("a1"), "").Allowed)

	d := req.Evaluate(instructor("i1"), "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleMismatch, d.Reason)
}

func TestRoleRequirementSelfException(t *testing.T) {
	req := SelfOrRoles(models.RoleAdmin)

	// Self exception applies regardless of role.
	assert.True(t, req.Evaluate(student("u1"), "u1").Allowed)
	assert.True(t, req.Evaluate(admin("a1"), "u1").Allowed)

	d := req.Evaluate(student("u2"), "u1")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleMismatch, d.Reason)

	// Missing owner never triggers the exception.
	assert.False(t, req.Evaluate(student("u1"), "").Allowed)
}

func TestDecisionErrMapping(t *testing.T) {
	assert.NoError(t, Allow().Err())
	assert.ErrorIs(t, Deny(ReasonUnauthenticated).Err(), appErrors.ErrUnauthenticated)
	assert.ErrorIs(t, Deny(ReasonInactiveAccount).Err(), appErrors.ErrInactiveAccount)
	assert.ErrorIs(t, Deny(ReasonNotOwner).Err(), appErrors.ErrNotOwner)
	assert.ErrorIs(t, Deny(ReasonNotEnrolled).Err(), appErrors.ErrNotEnrolled)
	assert.ErrorIs(t, Deny(ReasonRoleMismatch).Err(), appErrors.ErrForbidden)
}
