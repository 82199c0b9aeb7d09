package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type mockCourseRepo struct {
	courses  map[string]*models.Course
	approved map[string]string
	created  []*models.Course
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]*models.Course), approved: make(map[string]string)}
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func (m *mockCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: *course, InstructorName: "Instructor"}, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-created"
	}
	m.courses[course.ID] = course
	m.created = append(m.created, course)
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, id string, title, description *string, categoryID *string, level *models.CourseLevel, thumbnailURL *string, isPublished *bool) error {
	course, ok := m.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	if title != nil {
		course.Title = *title
	}
	if isPublished != nil {
		course.IsPublished = *isPublished
	}
	return nil
}

func (m *mockCourseRepo) Unpublish(ctx context.Context, id string) error {
	course, ok := m.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	course.IsPublished = false
	return nil
}

func (m *mockCourseRepo) Approve(ctx context.Context, id, approvedBy string) error {
	course, ok := m.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	course.IsApproved = true
	m.approved[id] = approvedBy
	return nil
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, course := range m.courses {
		if filter.PublishedOnly && !course.IsPublished {
			continue
		}
		if filter.InstructorID != "" && course.InstructorID != filter.InstructorID {
			continue
		}
		out = append(out, models.CourseDetail{Course: *course})
	}
	return out, len(out), nil
}

// mockCache records invalidation patterns; reads always miss.
type mockCache struct {
	deleted []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	return nil
}

func adminPrincipal(id string) *authz.Principal {
	return &authz.Principal{ID: id, Role: models.RoleAdmin, Active: true}
}

func newCourseService(repo *mockCourseRepo, cache *mockCache) *CourseService {
	return NewCourseService(repo, cache, nil, nil, time.Minute)
}

func seedCourse(repo *mockCourseRepo, id, instructorID string, published bool) *models.Course {
	course := &models.Course{
		ID:           id,
		Title:        "Course " + id,
		InstructorID: instructorID,
		Level:        models.LevelBeginner,
		IsPublished:  published,
	}
	repo.courses[id] = course
	return course
}

func TestCreateCourseStudentForbidden(t *testing.T) {
	svc := newCourseService(newMockCourseRepo(), &mockCache{})

	_, err := svc.Create(context.Background(), studentPrincipal("s1"), "", CreateCourseRequest{Title: "Intro to Go"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestCreateCourseValidatesBeforeRoleGate(t *testing.T) {
	svc := newCourseService(newMockCourseRepo(), &mockCache{})

	// A malformed payload fails on validation even when the caller would
	// also be refused by the role gate.
	_, err := svc.Create(context.Background(), studentPrincipal("s1"), "", CreateCourseRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestCreateCourseOwnership(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newCourseService(repo, &mockCache{})

	// Instructors always own what they create; the override is ignored.
	course, err := svc.Create(context.Background(), instructorPrincipal("i1"), "i2", CreateCourseRequest{Title: "Intro to Go"})
	require.NoError(t, err)
	assert.Equal(t, "i1", course.InstructorID)
	assert.Equal(t, models.LevelBeginner, course.Level)

	course, err = svc.Create(context.Background(), adminPrincipal("a1"), "i2", CreateCourseRequest{Title: "Advanced Go", Level: models.LevelAdvanced})
	require.NoError(t, err)
	assert.Equal(t, "i2", course.InstructorID)
	assert.Equal(t, models.LevelAdvanced, course.Level)
}

func TestCreateCourseInvalidatesCatalog(t *testing.T) {
	cache := &mockCache{}
	svc := newCourseService(newMockCourseRepo(), cache)

	_, err := svc.Create(context.Background(), instructorPrincipal("i1"), "", CreateCourseRequest{Title: "Intro to Go"})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, "catalog:*")
}

func TestGetUnpublishedMaskedAsNotFound(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", false)
	svc := newCourseService(repo, &mockCache{})
	ctx := context.Background()

	// Anonymous and non-owner students cannot tell a draft from a missing course.
	_, err := svc.Get(ctx, nil, "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = svc.Get(ctx, studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	detail, err := svc.Get(ctx, instructorPrincipal("i1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", detail.ID)

	detail, err = svc.Get(ctx, adminPrincipal("a1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", detail.ID)
}

func TestGetPublishedVisibleToAnonymous(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", true)
	svc := newCourseService(repo, &mockCache{})

	detail, err := svc.Get(context.Background(), nil, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", detail.ID)
}

func TestListReturnsPublishedOnly(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", true)
	seedCourse(repo, "c2", "i1", false)
	svc := newCourseService(repo, &mockCache{})

	courses, total, err := svc.List(context.Background(), models.CourseFilter{PublishedOnly: false})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
}

func TestListAllAdminOnly(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", true)
	seedCourse(repo, "c2", "i1", false)
	svc := newCourseService(repo, &mockCache{})
	ctx := context.Background()

	_, _, err := svc.ListAll(ctx, instructorPrincipal("i1"), models.CourseFilter{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, total, err := svc.ListAll(ctx, adminPrincipal("a1"), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListMineScopesToCaller(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", false)
	seedCourse(repo, "c2", "i2", true)
	svc := newCourseService(repo, &mockCache{})

	courses, total, err := svc.ListMine(context.Background(), instructorPrincipal("i1"), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
}

func TestUpdateCourseRequiresOwnership(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", true)
	svc := newCourseService(repo, &mockCache{})
	ctx := context.Background()
	title := "Renamed"

	_, err := svc.Update(ctx, instructorPrincipal("i2"), "c1", UpdateCourseRequest{Title: &title})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	updated, err := svc.Update(ctx, instructorPrincipal("i1"), "c1", UpdateCourseRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
}

func TestDeleteCourseUnpublishes(t *testing.T) {
	repo := newMockCourseRepo()
	course := seedCourse(repo, "c1", "i1", true)
	cache := &mockCache{}
	svc := newCourseService(repo, cache)

	err := svc.Delete(context.Background(), instructorPrincipal("i1"), "c1")
	require.NoError(t, err)

	// Soft delete: the row survives, only visibility changes.
	assert.False(t, course.IsPublished)
	assert.Contains(t, cache.deleted, "catalog:*")
}

func TestDeleteCourseNotOwner(t *testing.T) {
	repo := newMockCourseRepo()
	seedCourse(repo, "c1", "i1", true)
	svc := newCourseService(repo, &mockCache{})

	err := svc.Delete(context.Background(), instructorPrincipal("i2"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
}

func TestApproveCourseAdminOnly(t *testing.T) {
	repo := newMockCourseRepo()
	course := seedCourse(repo, "c1", "i1", true)
	svc := newCourseService(repo, &mockCache{})
	ctx := context.Background()

	err := svc.Approve(ctx, instructorPrincipal("i1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Approve(ctx, adminPrincipal("a1"), "c1"))
	assert.True(t, course.IsApproved)
	assert.Equal(t, "a1", repo.approved["c1"])
}

func TestApproveMissingCourse(t *testing.T) {
	svc := newCourseService(newMockCourseRepo(), &mockCache{})

	err := svc.Approve(context.Background(), adminPrincipal("a1"), "nope")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
