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

// LessonRepository provides database access for lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new instance of LessonRepository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const lessonColumns = `id, module_id, title, content_type, content_url, position, created_at, updated_at`

// FindByID returns a lesson by identifier.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1 LIMIT 1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson by id: %w", err)
	}
	return &lesson, nil
}

// ListByModule returns a module's lessons in display order.
func (r *LessonRepository) ListByModule(ctx context.Context, moduleID string) ([]models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE module_id = $1 ORDER BY position ASC, created_at ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, moduleID); err != nil {
		return nil, fmt.Errorf("list lessons by module: %w", err)
	}
	return lessons, nil
}

// Create persists a new lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, module_id, title, content_type, content_url, position, created_at, updated_at)
        VALUES (:id, :module_id, :title, :content_type, :content_url, :position, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update applies the provided non-nil fields.
func (r *LessonRepository) Update(ctx context.Context, id string, title *string, contentType *models.LessonContentType, contentURL *string, position *int) error {
	const query = `UPDATE lessons SET
        title = COALESCE($2, title),
        content_type = COALESCE($3, content_type),
        content_url = COALESCE($4, content_url),
        position = COALESCE($5, position),
        updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, contentType, contentURL, position, time.Now().UTC()); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// Delete removes a lesson.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lesson rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveOwnership walks lesson → module → course and returns the owning
// instructor. A broken chain surfaces as not found.
func (r *LessonRepository) ResolveOwnership(ctx context.Context, lessonID string) (*authz.Ownership, error) {
	const query = `SELECT c.instructor_id, c.id AS course_id
        FROM lessons l
        JOIN modules m ON m.id = l.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE l.id = $1 LIMIT 1`
	var own authz.Ownership
	if err := r.db.GetContext(ctx, &own, query, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve lesson ownership: %w", err)
	}
	return &own, nil
}
