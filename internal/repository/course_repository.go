package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumenlms/lms-api/internal/models"
)

// CourseRepository provides database access for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, title, description, instructor_id, category_id, level, thumbnail_url, is_published, is_approved, approved_by, created_at, updated_at`

// FindByID returns a course by identifier regardless of publish state.
// Visibility is the caller's problem.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindDetailByID returns a course joined with instructor and category names.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.title, c.description, c.instructor_id, c.category_id, c.level,
        c.thumbnail_url, c.is_published, c.is_approved, c.approved_by, c.created_at, c.updated_at,
        u.name AS instructor_name, cat.name AS category_name
        FROM courses c
        JOIN users u ON u.id = c.instructor_id
        LEFT JOIN categories cat ON cat.id = c.category_id
        WHERE c.id = $1 LIMIT 1`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course detail: %w", err)
	}
	return &detail, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, instructor_id, category_id, level, thumbnail_url, is_published, is_approved, created_at, updated_at)
        VALUES (:id, :title, :description, :instructor_id, :category_id, :level, :thumbnail_url, :is_published, :is_approved, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update applies the provided non-nil fields.
func (r *CourseRepository) Update(ctx context.Context, id string, title, description *string, categoryID *string, level *models.CourseLevel, thumbnailURL *string, isPublished *bool) error {
	const query = `UPDATE courses SET
        title = COALESCE($2, title),
        description = COALESCE($3, description),
        category_id = COALESCE($4, category_id),
        level = COALESCE($5, level),
        thumbnail_url = COALESCE($6, thumbnail_url),
        is_published = COALESCE($7, is_published),
        updated_at = $8
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, description, categoryID, level, thumbnailURL, isPublished, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Unpublish soft-deletes a course by pulling it from the catalog.
// Enrollments, modules and lessons stay intact.
func (r *CourseRepository) Unpublish(ctx context.Context, id string) error {
	const query = `UPDATE courses SET is_published = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("unpublish course: %w", err)
	}
	return nil
}

// Approve marks a course approved by an admin.
func (r *CourseRepository) Approve(ctx context.Context, id, approvedBy string) error {
	const query = `UPDATE courses SET is_approved = TRUE, approved_by = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, approvedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve course: %w", err)
	}
	return nil
}

// List returns courses matching the filter with a total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	baseQuery := `FROM courses c
        JOIN users u ON u.id = c.instructor_id
        LEFT JOIN categories cat ON cat.id = c.category_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.PublishedOnly {
		conditions = append(conditions, "c.is_published = TRUE")
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("c.category_id = $%d", len(args)+1))
		args = append(args, filter.CategoryID)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT c.id, c.title, c.description, c.instructor_id, c.category_id, c.level,
        c.thumbnail_url, c.is_published, c.is_approved, c.approved_by, c.created_at, c.updated_at,
        u.name AS instructor_name, cat.name AS category_name
        %s ORDER BY c.created_at DESC LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}
