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

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Exists(ctx context.Context, userID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateProgress(ctx context.Context, userID, courseID string, progress int) error
	Delete(ctx context.Context, userID, courseID string) error
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

// EnrollmentService provides enrollment use cases.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   contentCourseRepository
	cache     courseCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService instance.
func NewEnrollmentService(repo enrollmentRepository, courses contentCourseRepository, cache courseCache, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{repo: repo, courses: courses, cache: cache, validator: validate, logger: logger}
}

// ProgressRequest carries a progress update.
type ProgressRequest struct {
	Progress int `json:"progress" validate:"gte=0,lte=100"`
}

// Enroll registers the calling student into a published course. Enrolling
// twice is a conflict; the unique index settles races.
func (s *EnrollmentService) Enroll(ctx context.Context, p *authz.Principal, courseID string) (*models.Enrollment, error) {
	if d := authz.AnyOf(models.RoleStudent).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	// Unpublished courses do not exist for students.
	if !course.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	if exists, err := s.repo.Exists(ctx, p.ID, courseID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	} else if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}

	enrollment := &models.Enrollment{UserID: p.ID, CourseID: courseID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateAnalytics(ctx, courseID)
	return enrollment, nil
}

// Unenroll removes the caller's enrollment. Not being enrolled is not found.
func (s *EnrollmentService) Unenroll(ctx context.Context, p *authz.Principal, courseID string) error {
	if d := authz.AnyOf(models.RoleStudent).Evaluate(p, ""); !d.Allowed {
		return d.Err()
	}

	if err := s.repo.Delete(ctx, p.ID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	s.invalidateAnalytics(ctx, courseID)
	return nil
}

// UpdateProgress sets a student's progress in a course, 0 to 100. Students
// update their own enrollment; admins may update any student's.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, p *authz.Principal, userID, courseID string, req ProgressRequest) (*models.Enrollment, error) {
	if p != nil && userID == "" {
		userID = p.ID
	}
	if d := authz.SelfOrRoles(models.RoleAdmin).Evaluate(p, userID); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "progress must be between 0 and 100")
	}

	if err := s.repo.UpdateProgress(ctx, userID, courseID, req.Progress); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}

	s.invalidateAnalytics(ctx, courseID)

	enrollment, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	return enrollment, nil
}

// IsEnrolled reports whether the caller is enrolled in a course.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, p *authz.Principal, courseID string) (bool, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return false, d.Err()
	}
	exists, err := s.repo.Exists(ctx, p.ID, courseID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return exists, nil
}

// ListMine returns the caller's enrollments with course info.
func (s *EnrollmentService) ListMine(ctx context.Context, p *authz.Principal) ([]models.EnrollmentDetail, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	enrollments, err := s.repo.ListByUser(ctx, p.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListCourseStudents returns the roster of a course. Course owner or admin.
func (s *EnrollmentService) ListCourseStudents(ctx context.Context, p *authz.Principal, courseID string) ([]models.EnrollmentDetail, error) {
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

	enrollments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course students")
	}
	return enrollments, nil
}

func (s *EnrollmentService) invalidateAnalytics(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "analytics:course:"+courseID+"*"); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
