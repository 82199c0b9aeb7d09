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

// AssignmentRepository provides database access for assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, lesson_id, title, description, deadline, max_score, created_at, updated_at`

// FindByID returns an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1 LIMIT 1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by id: %w", err)
	}
	return &assignment, nil
}

// ListByLesson returns the assignments attached to a lesson.
func (r *AssignmentRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE lesson_id = $1 ORDER BY deadline ASC`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, lessonID); err != nil {
		return nil, fmt.Errorf("list assignments by lesson: %w", err)
	}
	return assignments, nil
}

// ListUpcomingForUser returns assignments with future deadlines in courses
// the user is enrolled in.
func (r *AssignmentRepository) ListUpcomingForUser(ctx context.Context, userID string, until time.Time) ([]models.Assignment, error) {
	const query = `SELECT a.id, a.lesson_id, a.title, a.description, a.deadline, a.max_score, a.created_at, a.updated_at
        FROM assignments a
        JOIN lessons l ON l.id = a.lesson_id
        JOIN modules m ON m.id = l.module_id
        JOIN enrollments e ON e.course_id = m.course_id
        WHERE e.user_id = $1 AND a.deadline > NOW() AND a.deadline <= $2
        ORDER BY a.deadline ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, userID, until); err != nil {
		return nil, fmt.Errorf("list upcoming assignments: %w", err)
	}
	return assignments, nil
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, lesson_id, title, description, deadline, max_score, created_at, updated_at)
        VALUES (:id, :lesson_id, :title, :description, :deadline, :max_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update applies the provided non-nil fields. Deadline edits are legal even
// after the deadline has passed.
func (r *AssignmentRepository) Update(ctx context.Context, id string, title, description *string, deadline *time.Time, maxScore *int) error {
	const query = `UPDATE assignments SET
        title = COALESCE($2, title),
        description = COALESCE($3, description),
        deadline = COALESCE($4, deadline),
        max_score = COALESCE($5, max_score),
        updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, description, deadline, maxScore, time.Now().UTC()); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment; submissions cascade at the database level.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveOwnership walks assignment → lesson → module → course.
func (r *AssignmentRepository) ResolveOwnership(ctx context.Context, assignmentID string) (*authz.Ownership, error) {
	const query = `SELECT c.instructor_id, c.id AS course_id
        FROM assignments a
        JOIN lessons l ON l.id = a.lesson_id
        JOIN modules m ON m.id = l.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE a.id = $1 LIMIT 1`
	var own authz.Ownership
	if err := r.db.GetContext(ctx, &own, query, assignmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve assignment ownership: %w", err)
	}
	return &own, nil
}
