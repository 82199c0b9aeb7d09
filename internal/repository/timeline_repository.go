package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumenlms/lms-api/internal/models"
)

// TimelineRepository provides database access for user timeline events.
type TimelineRepository struct {
	db *sqlx.DB
}

// NewTimelineRepository creates a new instance of TimelineRepository.
func NewTimelineRepository(db *sqlx.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Create persists a new timeline event.
func (r *TimelineRepository) Create(ctx context.Context, event *models.TimelineEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timeline_events (id, user_id, title, description, event_date, event_type, reference_id, reference_type, created_at)
        VALUES (:id, :user_id, :title, :description, :event_date, :event_type, :reference_id, :reference_type, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create timeline event: %w", err)
	}
	return nil
}

// CreateForCourse fans one event out to every student enrolled in a course.
func (r *TimelineRepository) CreateForCourse(ctx context.Context, courseID string, template *models.TimelineEvent) error {
	const query = `INSERT INTO timeline_events (id, user_id, title, description, event_date, event_type, reference_id, reference_type, created_at)
        SELECT gen_random_uuid()::text, e.user_id, $2, $3, $4, $5, $6, $7, $8
        FROM enrollments e WHERE e.course_id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID,
		template.Title, template.Description, template.EventDate, template.EventType,
		template.ReferenceID, template.ReferenceType, time.Now().UTC()); err != nil {
		return fmt.Errorf("create course timeline events: %w", err)
	}
	return nil
}

// Upcoming returns a user's future events, soonest first.
func (r *TimelineRepository) Upcoming(ctx context.Context, userID string, limit int) ([]models.TimelineEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, user_id, title, description, event_date, event_type, reference_id, reference_type, created_at
        FROM timeline_events
        WHERE user_id = $1 AND event_date > NOW()
        ORDER BY event_date ASC
        LIMIT $2`
	var events []models.TimelineEvent
	if err := r.db.SelectContext(ctx, &events, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list upcoming timeline events: %w", err)
	}
	return events, nil
}

// DeleteByReference removes events pointing at a deleted entity.
func (r *TimelineRepository) DeleteByReference(ctx context.Context, referenceType, referenceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timeline_events WHERE reference_type = $1 AND reference_id = $2`, referenceType, referenceID); err != nil {
		return fmt.Errorf("delete timeline events by reference: %w", err)
	}
	return nil
}
