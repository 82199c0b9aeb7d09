package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumenlms/lms-api/internal/models"
)

// EnrollmentRepository provides database access for course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new instance of EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByUserAndCourse returns an enrollment for a (user, course) pair.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, progress, enrolled_at
        FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// Exists reports whether the user is enrolled in the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// Create persists a new enrollment. The UNIQUE (user_id, course_id) index
// backstops the duplicate pre-check.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, user_id, course_id, progress, enrolled_at)
        VALUES (:id, :user_id, :course_id, :progress, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateProgress sets the progress of an enrollment by (user, course).
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, userID, courseID string, progress int) error {
	const query = `UPDATE enrollments SET progress = $3 WHERE user_id = $1 AND course_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, courseID, progress)
	if err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment progress rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an enrollment (unenroll) by (user, course).
func (r *EnrollmentRepository) Delete(ctx context.Context, userID, courseID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByUser returns the courses a user is enrolled in with course info.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.user_id, e.course_id, e.progress, e.enrolled_at,
        c.title AS course_title, i.name AS instructor_name,
        s.name AS student_name, s.email AS student_email
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        JOIN users i ON i.id = c.instructor_id
        JOIN users s ON s.id = e.user_id
        WHERE e.user_id = $1
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments by user: %w", err)
	}
	return enrollments, nil
}

// ListByCourse returns the students enrolled in a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.user_id, e.course_id, e.progress, e.enrolled_at,
        c.title AS course_title, i.name AS instructor_name,
        s.name AS student_name, s.email AS student_email
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        JOIN users i ON i.id = c.instructor_id
        JOIN users s ON s.id = e.user_id
        WHERE e.course_id = $1
        ORDER BY e.enrolled_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments by course: %w", err)
	}
	return enrollments, nil
}

// Stats aggregates enrollment numbers for a course.
func (r *EnrollmentRepository) Stats(ctx context.Context, courseID string) (*models.CourseStats, error) {
	const query = `SELECT
        COUNT(*) AS total_students,
        COUNT(*) FILTER (WHERE progress = 100) AS completed_students,
        COUNT(*) FILTER (WHERE progress > 0 AND progress < 100) AS active_students,
        COALESCE(AVG(progress), 0) AS avg_progress
        FROM enrollments WHERE course_id = $1`
	var stats models.CourseStats
	if err := r.db.GetContext(ctx, &stats, query, courseID); err != nil {
		return nil, fmt.Errorf("course enrollment stats: %w", err)
	}
	return &stats, nil
}

// Trend returns per-day enrollment counts for the last N days.
func (r *EnrollmentRepository) Trend(ctx context.Context, courseID string, days int) ([]models.EnrollmentTrendPoint, error) {
	const query = `SELECT TO_CHAR(enrolled_at::date, 'YYYY-MM-DD') AS date, COUNT(*) AS count
        FROM enrollments
        WHERE course_id = $1 AND enrolled_at >= NOW() - ($2 || ' days')::interval
        GROUP BY enrolled_at::date
        ORDER BY enrolled_at::date ASC`
	var points []models.EnrollmentTrendPoint
	if err := r.db.SelectContext(ctx, &points, query, courseID, days); err != nil {
		return nil, fmt.Errorf("enrollment trend: %w", err)
	}
	return points, nil
}
