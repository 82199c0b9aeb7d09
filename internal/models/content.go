package models

import "time"

// Module is a titled section of a course. Ownership is transitive through
// Course.InstructorID; no owner is denormalised onto the row.
type Module struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LessonContentType enumerates the supported lesson payloads.
type LessonContentType string

const (
	ContentVideo      LessonContentType = "video"
	ContentText       LessonContentType = "text"
	ContentQuiz       LessonContentType = "quiz"
	ContentPDF        LessonContentType = "pdf"
	ContentAudio      LessonContentType = "audio"
	ContentAssignment LessonContentType = "assignment"
)

// Lesson belongs to a module; ownership runs lesson → module → course.
type Lesson struct {
	ID          string            `db:"id" json:"id"`
	ModuleID    string            `db:"module_id" json:"module_id"`
	Title       string            `db:"title" json:"title"`
	ContentType LessonContentType `db:"content_type" json:"content_type"`
	ContentURL  *string           `db:"content_url" json:"content_url,omitempty"`
	Position    int               `db:"position" json:"position"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Quiz is a single-question auto-graded check attached to a lesson.
type Quiz struct {
	ID            string    `db:"id" json:"id"`
	LessonID      string    `db:"lesson_id" json:"lesson_id"`
	Question      string    `db:"question" json:"question"`
	Options       Strings   `db:"options" json:"options"`
	CorrectAnswer string    `db:"correct_answer" json:"-"`
	MaxScore      int       `db:"max_score" json:"max_score"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Assignment is manually graded work attached to a lesson. Edits after the
// deadline are allowed; submissions after it are not.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	LessonID    string    `db:"lesson_id" json:"lesson_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Deadline    time.Time `db:"deadline" json:"deadline"`
	MaxScore    int       `db:"max_score" json:"max_score"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Submission is a student's answer to an assignment. Grade stays nil until
// the grading action runs; at most one submission per (user, assignment).
type Submission struct {
	ID            string     `db:"id" json:"id"`
	AssignmentID  string     `db:"assignment_id" json:"assignment_id"`
	UserID        string     `db:"user_id" json:"user_id"`
	SubmissionURL string     `db:"submission_url" json:"submission_url"`
	Grade         *int       `db:"grade" json:"grade,omitempty"`
	Feedback      *string    `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt   time.Time  `db:"submitted_at" json:"submitted_at"`
	GradedAt      *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// QuizResult is the outcome of an auto-graded quiz submission.
type QuizResult struct {
	QuizID        string `json:"quiz_id"`
	IsCorrect     bool   `json:"is_correct"`
	CorrectAnswer string `json:"correct_answer"`
	Score         int    `json:"score"`
}
