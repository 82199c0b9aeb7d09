package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
)

// ModuleRepository provides database access for course modules.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository creates a new instance of ModuleRepository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// FindByID returns a module by identifier.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	const query = `SELECT id, course_id, title, position, created_at, updated_at FROM modules WHERE id = $1 LIMIT 1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find module by id: %w", err)
	}
	return &module, nil
}

// ListByCourse returns a course's modules in display order.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT id, course_id, title, position, created_at, updated_at
        FROM modules WHERE course_id = $1 ORDER BY position ASC, created_at ASC`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules by course: %w", err)
	}
	return modules, nil
}

// Create persists a new module.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now
	const query = `INSERT INTO modules (id, course_id, title, position, created_at, updated_at)
        VALUES (:id, :course_id, :title, :position, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// Update applies the provided non-nil fields.
func (r *ModuleRepository) Update(ctx context.Context, id string, title *string, position *int) error {
	const query = `UPDATE modules SET
        title = COALESCE($2, title),
        position = COALESCE($3, position),
        updated_at = $4
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, position, time.Now().UTC()); err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return nil
}

// Delete removes a module; lessons cascade at the database level.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete module rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveOwnership walks module → course and returns the owning instructor.
func (r *ModuleRepository) ResolveOwnership(ctx context.Context, moduleID string) (*authz.Ownership, error) {
	const query = `SELECT c.instructor_id, c.id AS course_id
        FROM modules m
        JOIN courses c ON c.id = m.course_id
        WHERE m.id = $1 LIMIT 1`
	var own authz.Ownership
	if err := r.db.GetContext(ctx, &own, query, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve module ownership: %w", err)
	}
	return &own, nil
}
