package models

import "time"

// CourseLevel is the difficulty classification for a course.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

// Course is the root of the content ownership chain. Exactly one instructor
// owns a course; "deleting" a course unpublishes it.
type Course struct {
	ID           string      `db:"id" json:"id"`
	Title        string      `db:"title" json:"title"`
	Description  string      `db:"description" json:"description"`
	InstructorID string      `db:"instructor_id" json:"instructor_id"`
	CategoryID   *string     `db:"category_id" json:"category_id,omitempty"`
	Level        CourseLevel `db:"level" json:"level"`
	ThumbnailURL *string     `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	IsPublished  bool        `db:"is_published" json:"is_published"`
	IsApproved   bool        `db:"is_approved" json:"is_approved"`
	ApprovedBy   *string     `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with denormalised display fields.
type CourseDetail struct {
	Course
	InstructorName string  `db:"instructor_name" json:"instructor_name"`
	CategoryName   *string `db:"category_name" json:"category_name,omitempty"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	InstructorID  string
	CategoryID    string
	Level         CourseLevel
	PublishedOnly bool
	Search        string
	Page          int
	PageSize      int
}

// Category groups courses; admin-owned, name unique.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryDetail adds the published course count to a category.
type CategoryDetail struct {
	Category
	CourseCount int `db:"course_count" json:"course_count"`
}
