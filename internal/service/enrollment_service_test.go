package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type enrollKey struct {
	userID   string
	courseID string
}

type mockEnrollRepo struct {
	enrollments map[enrollKey]*models.Enrollment
}

func newMockEnrollRepo() *mockEnrollRepo {
	return &mockEnrollRepo{enrollments: make(map[enrollKey]*models.Enrollment)}
}

func (m *mockEnrollRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	enrollment, ok := m.enrollments[enrollKey{userID, courseID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

func (m *mockEnrollRepo) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	_, ok := m.enrollments[enrollKey{userID, courseID}]
	return ok, nil
}

func (m *mockEnrollRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enr-" + enrollment.UserID + "-" + enrollment.CourseID
	}
	m.enrollments[enrollKey{enrollment.UserID, enrollment.CourseID}] = enrollment
	return nil
}

func (m *mockEnrollRepo) UpdateProgress(ctx context.Context, userID, courseID string, progress int) error {
	enrollment, ok := m.enrollments[enrollKey{userID, courseID}]
	if !ok {
		return sql.ErrNoRows
	}
	enrollment.Progress = progress
	return nil
}

func (m *mockEnrollRepo) Delete(ctx context.Context, userID, courseID string) error {
	key := enrollKey{userID, courseID}
	if _, ok := m.enrollments[key]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, key)
	return nil
}

func (m *mockEnrollRepo) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for key, enrollment := range m.enrollments {
		if key.userID == userID {
			out = append(out, models.EnrollmentDetail{Enrollment: *enrollment})
		}
	}
	return out, nil
}

func (m *mockEnrollRepo) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for key, enrollment := range m.enrollments {
		if key.courseID == courseID {
			out = append(out, models.EnrollmentDetail{Enrollment: *enrollment})
		}
	}
	return out, nil
}

type enrollmentFixture struct {
	repo    *mockEnrollRepo
	courses *mockCourseRepo
	cache   *mockCache
	svc     *EnrollmentService
}

func newEnrollmentFixture() *enrollmentFixture {
	repo := newMockEnrollRepo()
	courses := newMockCourseRepo()
	cache := &mockCache{}
	return &enrollmentFixture{
		repo:    repo,
		courses: courses,
		cache:   cache,
		svc:     NewEnrollmentService(repo, courses, cache, nil, nil),
	}
}

func TestEnrollStudentOnly(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)

	_, err := f.svc.Enroll(context.Background(), instructorPrincipal("i2"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestEnrollSuccess(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)

	enrollment, err := f.svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", enrollment.UserID)
	assert.Equal(t, "c1", enrollment.CourseID)
	assert.Contains(t, f.cache.deleted, "analytics:course:c1*")
}

func TestEnrollUnpublishedCourseNotFound(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", false)

	// A draft course must be indistinguishable from a missing one.
	_, err := f.svc.Enroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestEnrollTwiceConflict(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)

	_, err = f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestUnenrollMissingNotFound(t *testing.T) {
	f := newEnrollmentFixture()

	err := f.svc.Unenroll(context.Background(), studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestUnenrollRemovesEnrollment(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Unenroll(ctx, studentPrincipal("s1"), "c1"))

	enrolled, err := f.svc.IsEnrolled(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestUpdateProgressBounds(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)

	_, err = f.svc.UpdateProgress(ctx, studentPrincipal("s1"), "", "c1", ProgressRequest{Progress: 101})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = f.svc.UpdateProgress(ctx, studentPrincipal("s1"), "", "c1", ProgressRequest{Progress: -1})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	enrollment, err := f.svc.UpdateProgress(ctx, studentPrincipal("s1"), "", "c1", ProgressRequest{Progress: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, enrollment.Progress)
}

func TestUpdateProgressWithoutEnrollment(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)

	_, err := f.svc.UpdateProgress(context.Background(), studentPrincipal("s1"), "", "c1", ProgressRequest{Progress: 50})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestUpdateProgressAdminForAnyStudent(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)

	enrollment, err := f.svc.UpdateProgress(ctx, adminPrincipal("a1"), "s1", "c1", ProgressRequest{Progress: 75})
	require.NoError(t, err)
	assert.Equal(t, 75, enrollment.Progress)
	assert.Equal(t, "s1", enrollment.UserID)

	// Anyone else targeting another student's enrollment is refused.
	_, err = f.svc.UpdateProgress(ctx, instructorPrincipal("i1"), "s1", "c1", ProgressRequest{Progress: 10})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, err = f.svc.UpdateProgress(ctx, studentPrincipal("s2"), "s1", "c1", ProgressRequest{Progress: 10})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestListMineEnrollments(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	seedCourse(f.courses, "c2", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, studentPrincipal("s2"), "c2")
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, studentPrincipal("s1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].CourseID)
}

func TestListCourseStudentsOwnerOrAdmin(t *testing.T) {
	f := newEnrollmentFixture()
	seedCourse(f.courses, "c1", "i1", true)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)

	_, err = f.svc.ListCourseStudents(ctx, instructorPrincipal("i2"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	_, err = f.svc.ListCourseStudents(ctx, studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	roster, err := f.svc.ListCourseStudents(ctx, instructorPrincipal("i1"), "c1")
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	roster, err = f.svc.ListCourseStudents(ctx, adminPrincipal("a1"), "c1")
	require.NoError(t, err)
	assert.Len(t, roster, 1)
}

func TestListCourseStudentsMissingCourse(t *testing.T) {
	f := newEnrollmentFixture()

	_, err := f.svc.ListCourseStudents(context.Background(), adminPrincipal("a1"), "nope")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
