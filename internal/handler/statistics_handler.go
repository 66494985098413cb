package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/apperr"
	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	auth              *middleware.Auth
}

func NewStatisticsHandler(statisticsService service.StatisticsService, auth *middleware.Auth) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, auth: auth}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	statsGroup.Use(h.auth.RequireRole(model.RoleProducer, model.RoleAdmin))
	{
		statsGroup.GET("", h.GetStatistics)
	}
}

// @Summary      Get Dashboard Statistics
// @Description  Submission counts per state, completions, top performers and creative budget bounded by time
// @Tags         statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339), defaults to the first of the month"
// @Param        end_date   query string false "End Date (RFC3339), defaults to now"
// @Success      200 {object} response.Response{data=model.StudioStatistics}
// @Failure      422 {object} response.Response "Invalid date format"
// @Failure      403 {object} response.Response
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	// Default to current month if no dates are provided
	now := timeNow()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := now

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, apperr.Field("start_date", "invalid format, expected RFC3339"))
			return
		}
		startDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, apperr.Field("end_date", "invalid format, expected RFC3339"))
			return
		}
		endDate = parsed
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), callerOf(c), startDate, endDate)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "success", stats)
}
