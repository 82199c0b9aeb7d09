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

// QuizRepository provides database access for quizzes.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository creates a new instance of QuizRepository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

const quizColumns = `id, lesson_id, question, options, correct_answer, max_score, created_at, updated_at`

// FindByID returns a quiz by identifier, correct answer included. Callers
// must not hand the answer to students before they submit.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	query := fmt.Sprintf(`SELECT %s FROM quizzes WHERE id = $1 LIMIT 1`, quizColumns)
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find quiz by id: %w", err)
	}
	return &quiz, nil
}

// ListByLesson returns the quizzes attached to a lesson.
func (r *QuizRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.Quiz, error) {
	query := fmt.Sprintf(`SELECT %s FROM quizzes WHERE lesson_id = $1 ORDER BY created_at ASC`, quizColumns)
	var quizzes []models.Quiz
	if err := r.db.SelectContext(ctx, &quizzes, query, lessonID); err != nil {
		return nil, fmt.Errorf("list quizzes by lesson: %w", err)
	}
	return quizzes, nil
}

// Create persists a new quiz.
func (r *QuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	const query = `INSERT INTO quizzes (id, lesson_id, question, options, correct_answer, max_score, created_at, updated_at)
        VALUES (:id, :lesson_id, :question, :options, :correct_answer, :max_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quiz); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

// Update applies the provided non-nil fields.
func (r *QuizRepository) Update(ctx context.Context, id string, question *string, options models.Strings, correctAnswer *string, maxScore *int) error {
	const query = `UPDATE quizzes SET
        question = COALESCE($2, question),
        options = COALESCE($3, options),
        correct_answer = COALESCE($4, correct_answer),
        max_score = COALESCE($5, max_score),
        updated_at = $6
        WHERE id = $1`
	var opts interface{}
	if options != nil {
		opts = options
	}
	if _, err := r.db.ExecContext(ctx, query, id, question, opts, correctAnswer, maxScore, time.Now().UTC()); err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	return nil
}

// Delete removes a quiz.
func (r *QuizRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveOwnership walks quiz → lesson → module → course.
func (r *QuizRepository) ResolveOwnership(ctx context.Context, quizID string) (*authz.Ownership, error) {
	const query = `SELECT c.instructor_id, c.id AS course_id
        FROM quizzes q
        JOIN lessons l ON l.id = q.lesson_id
        JOIN modules m ON m.id = l.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE q.id = $1 LIMIT 1`
	var own authz.Ownership
	if err := r.db.GetContext(ctx, &own, query, quizID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve quiz ownership: %w", err)
	}
	return &own, nil
}
