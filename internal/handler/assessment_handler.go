package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenlms/lms-api/internal/middleware"
	"github.com/lumenlms/lms-api/internal/service"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
	"github.com/lumenlms/lms-api/pkg/response"
)

// AssessmentHandler exposes quiz, assignment and submission endpoints.
type AssessmentHandler struct {
	assessments *service.AssessmentService
}

// NewAssessmentHandler constructs AssessmentHandler.
func NewAssessmentHandler(assessments *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

// CreateQuiz godoc
// @Summary Create a quiz under a lesson
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.QuizRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/{id}/quizzes [post]
func (h *AssessmentHandler) CreateQuiz(c *gin.Context) {
	var req service.QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	quiz, err := h.assessments.CreateQuiz(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quiz)
}

// ListQuizzes godoc
// @Summary List quizzes of a lesson
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/quizzes [get]
func (h *AssessmentHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.assessments.ListQuizzes(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quizzes, nil)
}

// UpdateQuiz godoc
// @Summary Update a quiz
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Quiz ID"
// @Param payload body service.UpdateQuizRequest true "Quiz payload"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id} [put]
func (h *AssessmentHandler) UpdateQuiz(c *gin.Context) {
	var req service.UpdateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	quiz, err := h.assessments.UpdateQuiz(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}

// DeleteQuiz godoc
// @Summary Delete a quiz
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Quiz ID"
// @Success 204
// @Router /quizzes/{id} [delete]
func (h *AssessmentHandler) DeleteQuiz(c *gin.Context) {
	if err := h.assessments.DeleteQuiz(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitQuiz godoc
// @Summary Submit a quiz answer
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Quiz ID"
// @Param payload body service.QuizAnswerRequest true "Answer payload"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/submit [post]
func (h *AssessmentHandler) SubmitQuiz(c *gin.Context) {
	var req service.QuizAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.assessments.SubmitQuiz(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateAssignment godoc
// @Summary Create an assignment under a lesson
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.AssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /lessons/{id}/assignments [post]
func (h *AssessmentHandler) CreateAssignment(c *gin.Context) {
	var req service.AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.assessments.CreateAssignment(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// ListAssignments godoc
// @Summary List assignments of a lesson
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/assignments [get]
func (h *AssessmentHandler) ListAssignments(c *gin.Context) {
	assignments, err := h.assessments.ListAssignments(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// GetAssignment godoc
// @Summary Get an assignment
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssessmentHandler) GetAssignment(c *gin.Context) {
	assignment, err := h.assessments.GetAssignment(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// UpdateAssignment godoc
// @Summary Update an assignment
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.UpdateAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssessmentHandler) UpdateAssignment(c *gin.Context) {
	var req service.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.assessments.UpdateAssignment(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// DeleteAssignment godoc
// @Summary Delete an assignment
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /assignments/{id} [delete]
func (h *AssessmentHandler) DeleteAssignment(c *gin.Context) {
	if err := h.assessments.DeleteAssignment(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit work for an assignment
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.SubmitAssignmentRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *AssessmentHandler) Submit(c *gin.Context) {
	var req service.SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.assessments.Submit(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List submissions for an assignment
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *AssessmentHandler) ListSubmissions(c *gin.Context) {
	submissions, err := h.assessments.ListSubmissions(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// MySubmission godoc
// @Summary Get the caller's submission for an assignment
// @Tags Assessments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/my-submission [get]
func (h *AssessmentHandler) MySubmission(c *gin.Context) {
	submission, err := h.assessments.GetMySubmission(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// GradeSubmission godoc
// @Summary Grade a submission
// @Tags Assessments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *AssessmentHandler) GradeSubmission(c *gin.Context) {
	var req service.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.assessments.GradeSubmission(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
