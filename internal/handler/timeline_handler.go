package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumenlms/lms-api/internal/middleware"
	"github.com/lumenlms/lms-api/internal/service"
	"github.com/lumenlms/lms-api/pkg/response"
)

// TimelineHandler exposes the upcoming-events feed.
type TimelineHandler struct {
	timeline *service.TimelineService
}

// NewTimelineHandler constructs TimelineHandler.
func NewTimelineHandler(timeline *service.TimelineService) *TimelineHandler {
	return &TimelineHandler{timeline: timeline}
}

// Upcoming godoc
// @Summary Upcoming deadlines and events for the caller
// @Tags Timeline
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Max events"
// @Success 200 {object} response.Envelope
// @Router /timeline/upcoming [get]
func (h *TimelineHandler) Upcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	events, err := h.timeline.Upcoming(c.Request.Context(), middleware.PrincipalFrom(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
