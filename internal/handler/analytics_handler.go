package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenlms/lms-api/internal/middleware"
	"github.com/lumenlms/lms-api/internal/service"
	"github.com/lumenlms/lms-api/pkg/response"
)

// AnalyticsHandler exposes course analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// CourseAnalytics godoc
// @Summary Enrollment analytics for a course
// @Tags Analytics
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/analytics [get]
func (h *AnalyticsHandler) CourseAnalytics(c *gin.Context) {
	analytics, err := h.analytics.CourseAnalytics(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil)
}
