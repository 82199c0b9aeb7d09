package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
)

type mockQuizRepo struct {
	quizzes   map[string]*models.Quiz
	ownership *authz.Ownership
	created   []*models.Quiz
}

func (m *mockQuizRepo) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, ok := m.quizzes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return quiz, nil
}

func (m *mockQuizRepo) ListByLesson(ctx context.Context, lessonID string) ([]models.Quiz, error) {
	var out []models.Quiz
	for _, quiz := range m.quizzes {
		if quiz.LessonID == lessonID {
			out = append(out, *quiz)
		}
	}
	return out, nil
}

func (m *mockQuizRepo) Create(ctx context.Context, quiz *models.Quiz) error {
	quiz.ID = "q-new"
	m.created = append(m.created, quiz)
	return nil
}

func (m *mockQuizRepo) Update(ctx context.Context, id string, question *string, options models.Strings, correctAnswer *string, maxScore *int) error {
	return nil
}

func (m *mockQuizRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockQuizRepo) ResolveOwnership(ctx context.Context, quizID string) (*authz.Ownership, error) {
	if m.ownership == nil {
		return nil, sql.ErrNoRows
	}
	return m.ownership, nil
}

type mockAssignmentRepo struct {
	assignments map[string]*models.Assignment
	ownership   *authz.Ownership
	created     []*models.Assignment
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return assignment, nil
}

func (m *mockAssignmentRepo) ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error) {
	return nil, nil
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = "a-new"
	m.created = append(m.created, assignment)
	return nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, id string, title, description *string, deadline *time.Time, maxScore *int) error {
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockAssignmentRepo) ResolveOwnership(ctx context.Context, assignmentID string) (*authz.Ownership, error) {
	if m.ownership == nil {
		return nil, sql.ErrNoRows
	}
	return m.ownership, nil
}

type submissionKey struct{ userID, assignmentID string }

type mockSubmissionRepo struct {
	byID    map[string]*models.Submission
	byUser  map[submissionKey]*models.Submission
	created []*models.Submission
	graded  map[string]int
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{
		byID:   make(map[string]*models.Submission),
		byUser: make(map[submissionKey]*models.Submission),
		graded: make(map[string]int),
	}
}

func (m *mockSubmissionRepo) add(sub *models.Submission) {
	m.byID[sub.ID] = sub
	m.byUser[submissionKey{sub.UserID, sub.AssignmentID}] = sub
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sub, nil
}

func (m *mockSubmissionRepo) FindByUserAndAssignment(ctx context.Context, userID, assignmentID string) (*models.Submission, error) {
	sub, ok := m.byUser[submissionKey{userID, assignmentID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sub, nil
}

func (m *mockSubmissionRepo) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	return nil, nil
}

func (m *mockSubmissionRepo) ListByUser(ctx context.Context, userID string) ([]models.Submission, error) {
	return nil, nil
}

func (m *mockSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	submission.ID = "s-new"
	m.created = append(m.created, submission)
	m.add(submission)
	return nil
}

func (m *mockSubmissionRepo) Grade(ctx context.Context, id string, grade int, feedback *string, gradedAt time.Time) error {
	m.graded[id] = grade
	if sub, ok := m.byID[id]; ok {
		sub.Grade = &grade
		sub.Feedback = feedback
		sub.GradedAt = &gradedAt
	}
	return nil
}

type mockLessonResolver struct {
	ownership *authz.Ownership
}

func (m *mockLessonResolver) ResolveOwnership(ctx context.Context, lessonID string) (*authz.Ownership, error) {
	if m.ownership == nil {
		return nil, sql.ErrNoRows
	}
	return m.ownership, nil
}

type mockEnrollmentChecker struct {
	enrolled map[string]bool
}

func (m *mockEnrollmentChecker) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	return m.enrolled[userID+"/"+courseID], nil
}

type mockTimeline struct {
	fanOuts []string
	cleared []string
}

func (m *mockTimeline) CreateForCourse(ctx context.Context, courseID string, template *models.TimelineEvent) error {
	m.fanOuts = append(m.fanOuts, courseID)
	return nil
}

func (m *mockTimeline) DeleteByReference(ctx context.Context, referenceType, referenceID string) error {
	m.cleared = append(m.cleared, referenceType+"/"+referenceID)
	return nil
}

type assessmentFixture struct {
	svc         *AssessmentService
	quizzes     *mockQuizRepo
	assignments *mockAssignmentRepo
	submissions *mockSubmissionRepo
	enrollments *mockEnrollmentChecker
	timeline    *mockTimeline
}

func newAssessmentFixture(own *authz.Ownership) *assessmentFixture {
	f := &assessmentFixture{
		quizzes:     &mockQuizRepo{quizzes: make(map[string]*models.Quiz), ownership: own},
		assignments: &mockAssignmentRepo{assignments: make(map[string]*models.Assignment), ownership: own},
		submissions: newMockSubmissionRepo(),
		enrollments: &mockEnrollmentChecker{enrolled: make(map[string]bool)},
		timeline:    &mockTimeline{},
	}
	f.svc = NewAssessmentService(f.quizzes, f.assignments, f.submissions, &mockLessonResolver{ownership: own}, f.enrollments, f.timeline, nil, nil)
	return f
}

func studentPrincipal(id string) *authz.Principal {
	return &authz.Principal{ID: id, Role: models.RoleStudent, Active: true}
}

func instructorPrincipal(id string) *authz.Principal {
	return &authz.Principal{ID: id, Role: models.RoleInstructor, Active: true}
}

func TestCreateQuizRequiresOwnership(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	req := QuizRequest{Question: "What is Go?", Options: models.Strings{"a", "b"}, CorrectAnswer: "a"}

	_, err := f.svc.CreateQuiz(context.Background(), instructorPrincipal("someone-else"), "l1", req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))

	quiz, err := f.svc.CreateQuiz(context.Background(), instructorPrincipal("owner"), "l1", req)
	require.NoError(t, err)
	assert.Equal(t, 10, quiz.MaxScore)
}

func TestCreateQuizValidatesBeforeOwnership(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	// A malformed payload fails on validation before the ownership chain
	// is resolved, so a non-owner never sees an ownership denial for it.
	_, err := f.svc.CreateQuiz(context.Background(), instructorPrincipal("someone-else"), "l1", QuizRequest{Question: ""})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = f.svc.CreateAssignment(context.Background(), instructorPrincipal("someone-else"), "l1", AssignmentRequest{Title: ""})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestCreateQuizAnswerMustBeOption(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	_, err := f.svc.CreateQuiz(context.Background(), instructorPrincipal("owner"), "l1", QuizRequest{
		Question: "What is Go?", Options: models.Strings{"a", "b"}, CorrectAnswer: "c",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestSubmitQuizGradesExactMatch(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)
	f.quizzes.quizzes["q1"] = &models.Quiz{ID: "q1", LessonID: "l1", Options: models.Strings{"a", "b"}, CorrectAnswer: "a", MaxScore: 10}
	f.enrollments.enrolled["stu/c1"] = true

	result, err := f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q1", QuizAnswerRequest{Answers: []string{"a"}})
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, 10, result.Score)

	// Wrong answer scores zero; no partial credit and the comparison is exact.
	result, err = f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q1", QuizAnswerRequest{Answers: []string{"A"}})
	require.NoError(t, err)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, "a", result.CorrectAnswer)
}

func TestSubmitQuizGradesFirstAnswerOnly(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)
	f.quizzes.quizzes["q1"] = &models.Quiz{ID: "q1", LessonID: "l1", Options: models.Strings{"a", "b"}, CorrectAnswer: "a", MaxScore: 10}
	f.enrollments.enrolled["stu/c1"] = true

	// A correct answer after a wrong first one does not count.
	result, err := f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q1", QuizAnswerRequest{Answers: []string{"b", "a"}})
	require.NoError(t, err)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, 0, result.Score)

	result, err = f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q1", QuizAnswerRequest{Answers: []string{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, 10, result.Score)
}

func TestSubmitQuizRequiresEnrollment(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)
	f.quizzes.quizzes["q1"] = &models.Quiz{ID: "q1", CorrectAnswer: "a", MaxScore: 10}

	_, err := f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q1", QuizAnswerRequest{Answers: []string{"a"}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotEnrolled))
}

func TestCreateAssignmentFansOutTimeline(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	assignment, err := f.svc.CreateAssignment(context.Background(), instructorPrincipal("owner"), "l1", AssignmentRequest{
		Title: "Essay", Deadline: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 100, assignment.MaxScore)
	assert.Equal(t, []string{"c1"}, f.timeline.fanOuts)
}

func TestDeleteAssignmentClearsTimeline(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	err := f.svc.DeleteAssignment(context.Background(), instructorPrincipal("owner"), "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"assignment/a1"}, f.timeline.cleared)
}

func TestSubmitChecksEnrollmentBeforeDuplicateBeforeDeadline(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	deadline := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// Unenrolled student with an existing late submission still gets the
	// enrollment denial first.
	f := newAssessmentFixture(own)
	f.assignments.assignments["a1"] = &models.Assignment{ID: "a1", Deadline: deadline, MaxScore: 100}
	f.submissions.add(&models.Submission{ID: "s1", AssignmentID: "a1", UserID: "stu"})
	f.svc.now = func() time.Time { return deadline.Add(time.Hour) }

	_, err := f.svc.Submit(context.Background(), studentPrincipal("stu"), "a1", SubmitAssignmentRequest{SubmissionURL: "https://example.com/work"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotEnrolled))

	// Enrolled with an existing submission: duplicate wins over deadline.
	f.enrollments.enrolled["stu/c1"] = true
	_, err = f.svc.Submit(context.Background(), studentPrincipal("stu"), "a1", SubmitAssignmentRequest{SubmissionURL: "https://example.com/work"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Equal(t, "assignment already submitted", appErrors.FromError(err).Message)

	// Fresh student past the deadline: a conflict too, on timing.
	f.enrollments.enrolled["late/c1"] = true
	_, err = f.svc.Submit(context.Background(), studentPrincipal("late"), "a1", SubmitAssignmentRequest{SubmissionURL: "https://example.com/work"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Equal(t, "assignment deadline has passed", appErrors.FromError(err).Message)
}

func TestSubmitBeforeDeadlineSucceeds(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	deadline := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAssessmentFixture(own)
	f.assignments.assignments["a1"] = &models.Assignment{ID: "a1", Deadline: deadline, MaxScore: 100}
	f.enrollments.enrolled["stu/c1"] = true
	f.svc.now = func() time.Time { return deadline.Add(-time.Hour) }

	submission, err := f.svc.Submit(context.Background(), studentPrincipal("stu"), "a1", SubmitAssignmentRequest{SubmissionURL: "https://example.com/work"})
	require.NoError(t, err)
	assert.Equal(t, "stu", submission.UserID)
	require.Len(t, f.submissions.created, 1)
}

func TestGradeSubmissionBoundedByAssignmentMaxScore(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)
	f.assignments.assignments["a1"] = &models.Assignment{ID: "a1", MaxScore: 50}
	f.submissions.add(&models.Submission{ID: "s1", AssignmentID: "a1", UserID: "stu"})

	_, err := f.svc.GradeSubmission(context.Background(), instructorPrincipal("owner"), "s1", GradeSubmissionRequest{Grade: 51})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	graded, err := f.svc.GradeSubmission(context.Background(), instructorPrincipal("owner"), "s1", GradeSubmissionRequest{Grade: 50})
	require.NoError(t, err)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, 50, *graded.Grade)
}

func TestGradeSubmissionRequiresOwnership(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)
	f.assignments.assignments["a1"] = &models.Assignment{ID: "a1", MaxScore: 100}
	f.submissions.add(&models.Submission{ID: "s1", AssignmentID: "a1", UserID: "stu"})

	_, err := f.svc.GradeSubmission(context.Background(), instructorPrincipal("rival"), "s1", GradeSubmissionRequest{Grade: 10})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOwner))
}

func TestListSubmissionsStudentForbidden(t *testing.T) {
	own := &authz.Ownership{InstructorID: "owner", CourseID: "c1"}
	f := newAssessmentFixture(own)

	_, err := f.svc.ListSubmissions(context.Background(), studentPrincipal("stu"), "a1")
	require.Error(t, err)
}

func TestBrokenOwnershipChainIsNotFound(t *testing.T) {
	f := newAssessmentFixture(nil)

	_, err := f.svc.SubmitQuiz(context.Background(), studentPrincipal("stu"), "q-gone", QuizAnswerRequest{Answers: []string{"a"}})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
