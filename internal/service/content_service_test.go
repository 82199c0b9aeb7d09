package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type mockModuleRepo struct {
	modules   map[string]*models.Module
	ownership *authz.Ownership
}

func (m *mockModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	module, ok := m.modules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return module, nil
}

func (m *mockModuleRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	var out []models.Module
	for _, module := range m.modules {
		if module.CourseID == courseID {
			out = append(out, *module)
		}
	}
	return out, nil
}

func (m *mockModuleRepo) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = "module-created"
	}
	m.modules[module.ID] = module
	return nil
}

func (m *mockModuleRepo) Update(ctx context.Context, id string, title *string, position *int) error {
	module, ok := m.modules[id]
	if !ok {
		return sql.ErrNoRows
	}
	if title != nil {
		module.Title = *title
	}
	return nil
}

func (m *mockModuleRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.modules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.modules, id)
	return nil
}

func (m *mockModuleRepo) ResolveOwnership(ctx context.Context, moduleID string) (*authz.Ownership, error) {
	if m.ownership == nil {
		return nil, sql.ErrNoRows
	}
	return m.ownership, nil
}

type mockLessonRepo struct {
	lessons   map[string]*models.Lesson
	ownership *authz.Ownership
}

func (m *mockLessonRepo) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, ok := m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return lesson, nil
}

func (m *mockLessonRepo) ListByModule(ctx context.Context, moduleID string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, lesson := range m.lessons {
		if lesson.ModuleID == moduleID {
			out = append(out, *lesson)
		}
	}
	return out, nil
}

func (m *mockLessonRepo) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = "lesson-created"
	}
	m.lessons[lesson.ID] = lesson
	return nil
}

func (m *mockLessonRepo) Update(ctx context.Context, id string, title *string, contentType *models.LessonContentType, contentURL *string, position *int) error {
	lesson, ok := m.lessons[id]
	if !ok {
		return sql.ErrNoRows
	}
	if title != nil {
		lesson.Title = *title
	}
	return nil
}

func (m *mockLessonRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.lessons[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.lessons, id)
	return nil
}

func (m *mockLessonRepo) ResolveOwnership(ctx context.Context, lessonID string) (*authz.Ownership, error) {
	if m.ownership == nil {
		return nil, sql.ErrNoRows
	}
	return m.ownership, nil
}

type contentFixture struct {
	modules     *mockModuleRepo
	lessons     *mockLessonRepo
	courses     *mockCourseRepo
	enrollments *mockEnrollmentChecker
	svc         *ContentService
}

func newContentFixture(own *authz.Ownership) *contentFixture {
	modules := &mockModuleRepo{modules: make(map[string]*models.Module), ownership: own}
	lessons := &mockLessonRepo{lessons: make(map[string]*models.Lesson), ownership: own}
	courses := newMockCourseRepo()
	enrollments := &mockEnrollmentChecker{enrolled: make(map[string]bool)}
	return &contentFixture{
		modules:     modules,
		lessons:     lessons,
		courses:     courses,
		enrollments: enrollments,
		svc:         NewContentService(modules, lessons, courses, enrollments, nil, nil),
	}
}

func TestCreateModuleValidatesBeforeOwnership(t *testing.T) {
	f := newContentFixture(nil)
	seedCourse(f.courses, "c1", "i1", true)

	// A malformed payload is rejected before the course is even loaded, so
	// a non-owner sees the validation error, not an ownership denial.
	_, err := f.svc.CreateModule(context.Background(), instructorPrincipal("i2"), "c1", ModuleRequest{Title: ""})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = f.svc.CreateModule(context.Background(), instructorPrincipal("i2"), "c1", ModuleRequest{Title: "Week 1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))
}

func TestCreateModuleOwner(t *testing.T) {
	f := newContentFixture(nil)
	seedCourse(f.courses, "c1", "i1", true)

	module, err := f.svc.CreateModule(context.Background(), instructorPrincipal("i1"), "c1", ModuleRequest{Title: "Week 1", Position: 1})
	require.NoError(t, err)
	assert.Equal(t, "c1", module.CourseID)
	assert.Equal(t, 1, module.Position)
}

func TestCreateLessonValidatesBeforeOwnership(t *testing.T) {
	own := &authz.Ownership{InstructorID: "i1", CourseID: "c1"}
	f := newContentFixture(own)

	_, err := f.svc.CreateLesson(context.Background(), instructorPrincipal("i2"), "m1", LessonRequest{Title: "Intro", ContentType: "hologram"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = f.svc.CreateLesson(context.Background(), instructorPrincipal("i2"), "m1", LessonRequest{Title: "Intro", ContentType: models.ContentVideo})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	lesson, err := f.svc.CreateLesson(context.Background(), instructorPrincipal("i1"), "m1", LessonRequest{Title: "Intro", ContentType: models.ContentVideo})
	require.NoError(t, err)
	assert.Equal(t, "m1", lesson.ModuleID)
}

func TestListModulesEnrollmentGate(t *testing.T) {
	f := newContentFixture(nil)
	seedCourse(f.courses, "c1", "i1", true)
	f.modules.modules["m1"] = &models.Module{ID: "m1", CourseID: "c1", Title: "Week 1"}
	ctx := context.Background()

	_, err := f.svc.ListModules(ctx, studentPrincipal("s1"), "c1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotEnrolled))

	f.enrollments.enrolled["s1/c1"] = true
	modules, err := f.svc.ListModules(ctx, studentPrincipal("s1"), "c1")
	require.NoError(t, err)
	assert.Len(t, modules, 1)
}
