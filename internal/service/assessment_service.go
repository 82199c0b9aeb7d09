package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type quizRepository interface {
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) error
	Update(ctx context.Context, id string, question *string, options models.Strings, correctAnswer *string, maxScore *int) error
	Delete(ctx context.Context, id string) error
	ResolveOwnership(ctx context.Context, quizID string) (*authz.Ownership, error)
}

type assignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, id string, title, description *string, deadline *time.Time, maxScore *int) error
	Delete(ctx context.Context, id string) error
	ResolveOwnership(ctx context.Context, assignmentID string) (*authz.Ownership, error)
}

type submissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByUserAndAssignment(ctx context.Context, userID, assignmentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
	ListByUser(ctx context.Context, userID string) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Grade(ctx context.Context, id string, grade int, feedback *string, gradedAt time.Time) error
}

type lessonOwnershipResolver interface {
	ResolveOwnership(ctx context.Context, lessonID string) (*authz.Ownership, error)
}

type timelineWriter interface {
	CreateForCourse(ctx context.Context, courseID string, template *models.TimelineEvent) error
	DeleteByReference(ctx context.Context, referenceType, referenceID string) error
}

// AssessmentService provides quiz, assignment and submission use cases.
type AssessmentService struct {
	quizzes     quizRepository
	assignments assignmentRepository
	submissions submissionRepository
	lessons     lessonOwnershipResolver
	enrollments enrollmentChecker
	timeline    timelineWriter
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAssessmentService constructs an AssessmentService instance.
func NewAssessmentService(quizzes quizRepository, assignments assignmentRepository, submissions submissionRepository, lessons lessonOwnershipResolver, enrollments enrollmentChecker, timeline timelineWriter, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssessmentService{
		quizzes:     quizzes,
		assignments: assignments,
		submissions: submissions,
		lessons:     lessons,
		enrollments: enrollments,
		timeline:    timeline,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// QuizRequest carries the payload for quiz creation.
type QuizRequest struct {
	Question      string         `json:"question" validate:"required,min=3"`
	Options       models.Strings `json:"options" validate:"required,min=2,dive,required"`
	CorrectAnswer string         `json:"correct_answer" validate:"required"`
	MaxScore      int            `json:"max_score" validate:"omitempty,gt=0"`
}

// UpdateQuizRequest carries the mutable quiz fields.
type UpdateQuizRequest struct {
	Question      *string        `json:"question" validate:"omitempty,min=3"`
	Options       models.Strings `json:"options" validate:"omitempty,min=2,dive,required"`
	CorrectAnswer *string        `json:"correct_answer"`
	MaxScore      *int           `json:"max_score" validate:"omitempty,gt=0"`
}

// QuizAnswerRequest is a student's answer submission. The payload is an
// array but only the first answer is graded; the rest are ignored.
type QuizAnswerRequest struct {
	Answers []string `json:"answers" validate:"required,min=1,dive,required"`
}

// AssignmentRequest carries the payload for assignment creation.
type AssignmentRequest struct {
	Title       string    `json:"title" validate:"required,min=2"`
	Description *string   `json:"description"`
	Deadline    time.Time `json:"deadline" validate:"required"`
	MaxScore    int       `json:"max_score" validate:"omitempty,gt=0"`
}

// UpdateAssignmentRequest carries the mutable assignment fields.
type UpdateAssignmentRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=2"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	MaxScore    *int       `json:"max_score" validate:"omitempty,gt=0"`
}

// SubmitAssignmentRequest is a student's assignment submission.
type SubmitAssignmentRequest struct {
	SubmissionURL string `json:"submission_url" validate:"required,url"`
}

// GradeSubmissionRequest carries a grade and optional feedback.
type GradeSubmissionRequest struct {
	Grade    int     `json:"grade" validate:"gte=0"`
	Feedback *string `json:"feedback"`
}

// CreateQuiz attaches a quiz to a lesson. Owner or admin. The correct
// answer must be one of the options.
func (s *AssessmentService) CreateQuiz(ctx context.Context, p *authz.Principal, lessonID string, req QuizRequest) (*models.Quiz, error) {
	// Malformed payloads fail before any lookup or ownership decision.
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	if !containsOption(req.Options, req.CorrectAnswer) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "correct answer must be one of the options")
	}

	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}

	maxScore := req.MaxScore
	if maxScore == 0 {
		maxScore = 10
	}
	quiz := &models.Quiz{
		LessonID:      lessonID,
		Question:      req.Question,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		MaxScore:      maxScore,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quiz")
	}
	return quiz, nil
}

// ListQuizzes returns a lesson's quizzes, enrollment gated. The correct
// answer never serializes; the struct keeps it out of JSON.
func (s *AssessmentService) ListQuizzes(ctx context.Context, p *authz.Principal, lessonID string) ([]models.Quiz, error) {
	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	quizzes, err := s.quizzes.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	return quizzes, nil
}

// UpdateQuiz edits a quiz. Owner or admin.
func (s *AssessmentService) UpdateQuiz(ctx context.Context, p *authz.Principal, quizID string, req UpdateQuizRequest) (*models.Quiz, error) {
	own, err := s.resolveQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}

	if err := s.quizzes.Update(ctx, quizID, req.Question, req.Options, req.CorrectAnswer, req.MaxScore); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quiz")
	}

	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload quiz")
	}
	return quiz, nil
}

// DeleteQuiz removes a quiz. Owner or admin.
func (s *AssessmentService) DeleteQuiz(ctx context.Context, p *authz.Principal, quizID string) error {
	own, err := s.resolveQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return d.Err()
	}

	if err := s.quizzes.Delete(ctx, quizID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete quiz")
	}
	return nil
}

// SubmitQuiz auto-grades a student's answer: exact string equality against
// the stored correct answer, full score or zero. The result carries the
// correct answer back since the attempt is already spent.
func (s *AssessmentService) SubmitQuiz(ctx context.Context, p *authz.Principal, quizID string, req QuizAnswerRequest) (*models.QuizResult, error) {
	own, err := s.resolveQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid answer payload")
	}

	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}

	result := &models.QuizResult{
		QuizID:        quiz.ID,
		IsCorrect:     req.Answers[0] == quiz.CorrectAnswer,
		CorrectAnswer: quiz.CorrectAnswer,
	}
	if result.IsCorrect {
		result.Score = quiz.MaxScore
	}
	return result, nil
}

// CreateAssignment attaches an assignment to a lesson and fans a deadline
// event out to every enrolled student's timeline. Owner or admin.
func (s *AssessmentService) CreateAssignment(ctx context.Context, p *authz.Principal, lessonID string, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}

	maxScore := req.MaxScore
	if maxScore == 0 {
		maxScore = 100
	}
	assignment := &models.Assignment{
		LessonID:    lessonID,
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		MaxScore:    maxScore,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	refType := "assignment"
	if err := s.timeline.CreateForCourse(ctx, own.CourseID, &models.TimelineEvent{
		Title:         fmt.Sprintf("Assignment due: %s", assignment.Title),
		Description:   assignment.Description,
		EventDate:     assignment.Deadline,
		EventType:     "assignment_deadline",
		ReferenceID:   &assignment.ID,
		ReferenceType: &refType,
	}); err != nil {
		s.logger.Warn("failed to fan out assignment timeline events", zap.Error(err))
	}

	return assignment, nil
}

// GetAssignment returns an assignment, enrollment gated.
func (s *AssessmentService) GetAssignment(ctx context.Context, p *authz.Principal, assignmentID string) (*models.Assignment, error) {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// ListAssignments returns a lesson's assignments, enrollment gated.
func (s *AssessmentService) ListAssignments(ctx context.Context, p *authz.Principal, lessonID string) ([]models.Assignment, error) {
	own, err := s.resolveLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// UpdateAssignment edits an assignment. Owner or admin. Deadline edits
// after the deadline are legal; only submissions are time-gated.
func (s *AssessmentService) UpdateAssignment(ctx context.Context, p *authz.Principal, assignmentID string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if err := s.assignments.Update(ctx, assignmentID, req.Title, req.Description, req.Deadline, req.MaxScore); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload assignment")
	}
	return assignment, nil
}

// DeleteAssignment removes an assignment and its timeline events. Owner or
// admin. Submissions cascade at the database level.
func (s *AssessmentService) DeleteAssignment(ctx context.Context, p *authz.Principal, assignmentID string) error {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return d.Err()
	}

	if err := s.assignments.Delete(ctx, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	if err := s.timeline.DeleteByReference(ctx, "assignment", assignmentID); err != nil {
		s.logger.Warn("failed to clear assignment timeline events", zap.Error(err))
	}
	return nil
}

// Submit records a student's assignment submission. Checks run in order:
// enrollment, then duplicate, then deadline, so an unenrolled student is
// told about access before timing. The unique index is the authority if two
// submissions race past the duplicate pre-check.
func (s *AssessmentService) Submit(ctx context.Context, p *authz.Principal, assignmentID string, req SubmitAssignmentRequest) (*models.Submission, error) {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	if _, err := s.submissions.FindByUserAndAssignment(ctx, p.ID, assignmentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already submitted")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if s.now().After(assignment.Deadline) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment deadline has passed")
	}

	submission := &models.Submission{
		AssignmentID:  assignmentID,
		UserID:        p.ID,
		SubmissionURL: req.SubmissionURL,
		SubmittedAt:   s.now(),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// ListSubmissions returns every submission for an assignment. Owner or
// admin only; students see only their own via GetMySubmission.
func (s *AssessmentService) ListSubmissions(ctx context.Context, p *authz.Principal, assignmentID string) ([]models.Submission, error) {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// GetMySubmission returns the caller's own submission for an assignment.
func (s *AssessmentService) GetMySubmission(ctx context.Context, p *authz.Principal, assignmentID string) (*models.Submission, error) {
	own, err := s.resolveAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContentAccess(ctx, p, *own); err != nil {
		return nil, err
	}

	submission, err := s.submissions.FindByUserAndAssignment(ctx, p.ID, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// GradeSubmission records a grade. Owner or admin. The grade is bounded by
// the assignment's own max score, not a global constant.
func (s *AssessmentService) GradeSubmission(ctx context.Context, p *authz.Principal, submissionID string, req GradeSubmissionRequest) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	own, err := s.resolveAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(p, *own); !d.Allowed {
		return nil, d.Err()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if req.Grade > assignment.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade must be between 0 and %d", assignment.MaxScore))
	}

	if err := s.submissions.Grade(ctx, submissionID, req.Grade, req.Feedback, s.now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	graded, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload submission")
	}
	return graded, nil
}

func (s *AssessmentService) resolveLesson(ctx context.Context, lessonID string) (*authz.Ownership, error) {
	own, err := s.lessons.ResolveOwnership(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson ownership")
	}
	return own, nil
}

func (s *AssessmentService) resolveQuiz(ctx context.Context, quizID string) (*authz.Ownership, error) {
	own, err := s.quizzes.ResolveOwnership(ctx, quizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve quiz ownership")
	}
	return own, nil
}

func (s *AssessmentService) resolveAssignment(ctx context.Context, assignmentID string) (*authz.Ownership, error) {
	own, err := s.assignments.ResolveOwnership(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment ownership")
	}
	return own, nil
}

func (s *AssessmentService) requireContentAccess(ctx context.Context, p *authz.Principal, own authz.Ownership) error {
	if d := authz.CanAccessContent(p, own, false); d.Allowed {
		return nil
	} else if d.Reason != authz.ReasonNotEnrolled {
		return d.Err()
	}

	enrolled, err := s.enrollments.Exists(ctx, p.ID, own.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return authz.CanAccessContent(p, own, enrolled).Err()
}

func containsOption(options []string, answer string) bool {
	for _, option := range options {
		if option == answer {
			return true
		}
	}
	return false
}
