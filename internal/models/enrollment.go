package models

import "time"

// Enrollment registers a student to a course. At most one row per
// (user, course); the storage-level unique index is the authority when two
// enroll calls race.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Progress   int       `db:"progress" json:"progress"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with course and student info.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle    string `db:"course_title" json:"course_title"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	StudentName    string `db:"student_name" json:"student_name"`
	StudentEmail   string `db:"student_email" json:"student_email"`
}

// CourseStats holds read-time aggregates for a course; nothing here is stored.
type CourseStats struct {
	TotalStudents     int     `db:"total_students" json:"total_students"`
	CompletedStudents int     `db:"completed_students" json:"completed_students"`
	ActiveStudents    int     `db:"active_students" json:"active_students"`
	AverageProgress   float64 `db:"avg_progress" json:"avg_progress"`
}

// EnrollmentTrendPoint is one day of enrollment counts.
type EnrollmentTrendPoint struct {
	Date  string `db:"date" json:"date"`
	Count int    `db:"count" json:"count"`
}

// CourseAnalytics is the owner-facing analytics payload.
type CourseAnalytics struct {
	CourseID        string                 `json:"course_id"`
	Stats           CourseStats            `json:"stats"`
	EnrollmentTrend []EnrollmentTrendPoint `json:"enrollment_trend"`
	GeneratedAt     time.Time              `json:"generated_at"`
}
