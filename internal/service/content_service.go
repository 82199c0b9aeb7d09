package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type moduleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
	Create(ctx context.Context, module *models.Module) error
	Update(ctx context.Context, id string, title *string, position *int) error
	Delete(ctx context.Context, id string) error
	ResolveOwnership(ctx context.Context, moduleID string) (*authz.Ownership, error)
}

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByModule(ctx context.Context, moduleID string) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, id string, title *string, contentType *models.LessonContentType, contentURL *string, position *int) error
	Delete(ctx context.Context, id string) error
	ResolveOwnership(ctx context.Context, lessonID string) (*authz.Ownership, error)
}

type contentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, userID, courseID string) (bool, error)
}

// ContentService provides module and lesson use cases. Every mutation is
// gated on the transitive ownership chain; every student read is gated on
// enrollment in the derived course.
type ContentService struct {
	modules     moduleRepository
	lessons     lessonRepository
	courses     contentCourseRepository
	enrollments enrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewContentService constructs a ContentService instance.
func NewContentService(modules moduleRepository, lessons lessonRepository, courses contentCourseRepository, enrollments enrollmentChecker, validate *validator.Validate, logger *zap.Logger) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ContentService{
		modules:     modules,
		lessons:     lessons,
		courses:     courses,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
	}
}

// ModuleRequest carries the payload for module creation and edits.
type ModuleRequest struct {
	Title    string `json:"title" validate:"required,min=2"`
	Position int    `json:"position" validate:"gte=0"`
}

// UpdateModuleRequest carries the mutable module fields.
type UpdateModuleRequest struct {
	Title    *string `json:"title" validate:"omitempty,min=2"`
	Position *int    `json:"position" validate:"omitempty,gte=0"`
}

// LessonRequest carries the payload for lesson creation.
type LessonRequest struct {
	Title       string                   `json:"title" validate:"required,min=2"`
	ContentType models.LessonContentType `json:"content_type" validate:"required,oneof=video text quiz pdf audio assignment"`
	ContentURL  *string                  `json:"content_url"`
	Position    int                      `json:"position" validate:"gte=0"`
}

// UpdateLessonRequest carries the mutable lesson fields.
type UpdateLessonRequest struct {
	Title       *string                   `json:"title" validate:"omitempty,min=2"`
	ContentType *models.LessonContentType `json:"content_type" validate:"omitempty,oneof=video text quiz pdf audio assignment"`
	ContentURL  *string                   `json:"content_url"`
	Position    *int                      `json:"position" validate:"omitempty,gte=0"`
}

// CreateModule adds a module to a course. Course owner or admin.
func (s *ContentService) CreateModule(ctx context.Context, p *authz.Principal, courseID string, req ModuleRequest) (*models.Module, error) {
	// Malformed payloads fail before any lookup or ownership decision.
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if d := authz.CanMutate(p, authz.Ownership{InstructorID: course.InstructorID, CourseID: course.ID}); !d.Allowed {
		return nil, d.Err()
	}

	module := &models.Module{CourseID: courseID, Title: req.Title, Position: req.Position}
	if err := s.modules.Create(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}
	return module, nil
}

// ListModules returns a course's modules. Students must be enrolled; the
// owner and admins always pass.
func (s *ContentService) ListModules(ctx context.Context, p *authz.Principal, courseID string) ([]models.Module, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	own := authz.Ownership{InstructorID: course.InstructorID, CourseID: course.ID}
	if err := s.requireContentAccess(ctx, p, own); err != nil {
		return nil, err
	}

	modules, err := s.modules.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	return modules, nil
}

// UpdateModule edits a module. Owner or admin, resolved transitively.
func (s *ContentService) UpdateModule(ctx context.Context, p *authz.Principal, moduleID string, req UpdateModuleRequest) (*models.Module, error) {
	own, err := s.resolveModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}

	if err := s.modules.Update(ctx, moduleID, req.Title, req.Position); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}

	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload module")
	}
	return module, nil
}

// DeleteModule removes a module and, through the database cascade, its
// lessons. Owner or admin.
func (s *ContentService) DeleteModule(ctx context.Context, p *authz.Principal, moduleID string) error {
	own, err := s.resolveModule(ctx, moduleID)
	if err != nil {
		return err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return d.Err()
	}

	if err := s.modules.Delete(ctx, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}
	return nil
}

// CreateLesson adds a lesson to a module. Owner or admin, resolved through
// module → course.
func (s *ContentService) CreateLesson(ctx context.Context, p *authz.Principal, moduleID string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	own, err := s.resolveModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}

	lesson := &models.Lesson{
		ModuleID:    moduleID,
		Title:       req.Title,
		ContentType: req.ContentType,
		ContentURL:  req.ContentURL,
		Position:    req.Position,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// GetLesson returns a lesson. Students must be enrolled in the derived
// course; the owner and admins always pass.
func (s *ContentService) GetLesson(ctx context.Context, p *authz.Principal, lessonID string) (*models.Lesson, error) {
	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// ListLessons returns a module's lessons, enrollment-gated like GetLesson.
func (s *ContentService) ListLessons(ctx context.Context, p *authz.Principal, moduleID string) ([]models.Lesson, error) {
	own, err := s.resolveModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	lessons, err := s.lessons.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// UpdateLesson edits a lesson. Owner or admin.
func (s *ContentService) UpdateLesson(ctx context.Context, p *authz.Principal, lessonID string, req UpdateLessonRequest) (*models.Lesson, error) {
	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	if err := s.lessons.Update(ctx, lessonID, req.Title, req.ContentType, req.ContentURL, req.Position); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload lesson")
	}
	return lesson, nil
}

// DeleteLesson removes a lesson. Owner or admin.
func (s *ContentService) DeleteLesson(ctx context.Context, p *authz.Principal, lessonID string) error {
	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return d.Err()
	}

	if err := s.lessons.Delete(ctx, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	return nil
}

func (s *ContentService) resolveModule(ctx context.Context, moduleID string) (*authz.Ownership, error) {
	own, err := s.modules.ResolveOwnership(ctx, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve module ownership")
	}
	return own, nil
}

func (s *ContentService) resolveLesson(ctx context.Context, lessonID string) (*authz.Ownership, error) {
	own, err := s.lessons.ResolveOwnership(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson ownership")
	}
	return own, nil
}

// requireContentAccess enforces the enrollment gate for students. The
// enrollment lookup only runs when the admin and owner bypasses miss.
func (s *ContentService) requireContentAccess(ctx context.Context, p *authz.Principal, own authz.Ownership) error {
	if d := authz.CanAccessContent(p, own, false); d.Allowed {
		return nil
	} else if d.Reason != authz.ReasonNotEnrolled {
		return d.Err()
	}

	enrolled, err := s.enrollments.Exists(ctx, p.ID, own.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return authz.CanAccessContent(p, own, enrolled).Err()
}
