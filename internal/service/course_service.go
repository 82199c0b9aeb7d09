package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, id string, title, description *string, categoryID *string, level *models.CourseLevel, thumbnailURL *string, isPublished *bool) error
	Unpublish(ctx context.Context, id string) error
	Approve(ctx context.Context, id, approvedBy string) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseService provides course catalog use cases.
type CourseService struct {
	repo       courseRepository
	cache      courseCache
	validator  *validator.Validate
	logger     *zap.Logger
	catalogTTL time.Duration
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, cache courseCache, validate *validator.Validate, logger *zap.Logger, catalogTTL time.Duration) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, cache: cache, validator: validate, logger: logger, catalogTTL: catalogTTL}
}

// CreateCourseRequest carries the payload for course creation.
type CreateCourseRequest struct {
	Title       string             `json:"title" validate:"required,min=3"`
	Description string             `json:"description"`
	CategoryID  *string            `json:"category_id"`
	Level       models.CourseLevel `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Thumbnail   *string            `json:"thumbnail_url"`
	Publish     bool               `json:"publish"`
}

// UpdateCourseRequest carries the mutable course fields.
type UpdateCourseRequest struct {
	Title       *string             `json:"title" validate:"omitempty,min=3"`
	Description *string             `json:"description"`
	CategoryID  *string             `json:"category_id"`
	Level       *models.CourseLevel `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Thumbnail   *string             `json:"thumbnail_url"`
	Publish     *bool               `json:"publish"`
}

// Create registers a new course owned by the calling instructor. Admins may
// create on behalf of an instructor via instructorID; for instructors the
// parameter is ignored and ownership is always their own.
func (s *CourseService) Create(ctx context.Context, p *authz.Principal, instructorID string, req CreateCourseRequest) (*models.Course, error) {
	// Malformed payloads fail before the role gate.
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if d := authz.AnyOf(models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	owner := p.ID
	if p.Role == models.RoleAdmin && instructorID != "" {
		owner = instructorID
	}
	level := req.Level
	if level == "" {
		level = models.LevelBeginner
	}

	course := &models.Course{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: owner,
		CategoryID:   req.CategoryID,
		Level:        level,
		ThumbnailURL: req.Thumbnail,
		IsPublished:  req.Publish,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Get returns a course detail. Unpublished courses are visible only to the
// owner or an admin and surface as not found to everyone else.
func (s *CourseService) Get(ctx context.Context, p *authz.Principal, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if d := authz.CanViewCourse(p, &detail.Course); !d.Allowed {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return detail, nil
}

// List returns the published catalog. Search, category and level filters
// pass through; the published-only constraint cannot be bypassed here.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	filter.PublishedOnly = true
	return s.list(ctx, filter)
}

// ListAll returns all courses regardless of publish state. Admin only.
func (s *CourseService) ListAll(ctx context.Context, p *authz.Principal, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, 0, d.Err()
	}
	filter.PublishedOnly = false
	return s.list(ctx, filter)
}

// ListMine returns the calling instructor's own courses, drafts included.
func (s *CourseService) ListMine(ctx context.Context, p *authz.Principal, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	if d := authz.AnyOf(models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, 0, d.Err()
	}
	filter.InstructorID = p.ID
	filter.PublishedOnly = false
	return s.list(ctx, filter)
}

// Update edits a course. Owner or admin.
func (s *CourseService) Update(ctx context.Context, p *authz.Principal, id string, req UpdateCourseRequest) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if d := authz.CanMutate(p, authz.Ownership{InstructorID: course.InstructorID, CourseID: course.ID}); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if err := s.repo.Update(ctx, id, req.Title, req.Description, req.CategoryID, req.Level, req.Thumbnail, req.Publish); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload course")
	}
	return updated, nil
}

// Delete soft-deletes a course by unpublishing it. Owner or admin. Modules,
// lessons and enrollments survive; students keep their history.
func (s *CourseService) Delete(ctx context.Context, p *authz.Principal, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if d := authz.CanMutate(p, authz.Ownership{InstructorID: course.InstructorID, CourseID: course.ID}); !d.Allowed {
		return d.Err()
	}

	if err := s.repo.Unpublish(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unpublish course")
	}

	s.invalidateCatalog(ctx)
	return nil
}

// Approve marks a course approved. Admin only.
func (s *CourseService) Approve(ctx context.Context, p *authz.Principal, id string) error {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return d.Err()
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.repo.Approve(ctx, id, p.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve course")
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CourseService) list(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, total, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
