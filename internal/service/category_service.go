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

type categoryRepository interface {
	FindByID(ctx context.Context, id string) (*models.Category, error)
	List(ctx context.Context) ([]models.CategoryDetail, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, id string, name string) error
	Delete(ctx context.Context, id string) error
}

// CategoryService provides category management use cases. Reads are public;
// every write is admin only.
type CategoryService struct {
	repo      categoryRepository
	cache     courseCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs a CategoryService instance.
func NewCategoryService(repo categoryRepository, cache courseCache, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CategoryService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// CategoryRequest carries a category name.
type CategoryRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

// List returns all categories with their course counts.
func (s *CategoryService) List(ctx context.Context) ([]models.CategoryDetail, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// Create adds a category. Admin only; names are unique.
func (s *CategoryService) Create(ctx context.Context, p *authz.Principal, req CategoryRequest) (*models.Category, error) {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	category := &models.Category{Name: req.Name}
	if err := s.repo.Create(ctx, category); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return category, nil
}

// Update renames a category. Admin only.
func (s *CategoryService) Update(ctx context.Context, p *authz.Principal, id string, req CategoryRequest) (*models.Category, error) {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	if err := s.repo.Update(ctx, id, req.Name); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update category")
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload category")
	}
	return updated, nil
}

// Delete removes a category. Admin only. Courses in the category are
// detached, never deleted.
func (s *CategoryService) Delete(ctx context.Context, p *authz.Principal, id string) error {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return d.Err()
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
			s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
		}
	}
	return nil
}
