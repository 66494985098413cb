package handler

import (
	"github.com/gin-gonic/gin"

	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/pkg/pagination"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.auth.RequireRole(model.RoleAdmin)) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit rows with the acting user resolved
// @Summary      Get audit logs
// @Description  Retrieves audit rows newest first, optionally filtered by action or entity
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query     string  false  "Action filter, e.g. SUBMISSION_TRANSITION"
// @Param        entity_id  query     string  false  "Entity ID filter"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        per_page   query     int     false  "Items per page (default 15)"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), callerOf(c), service.AuditQuery{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
		Page:     p.Page,
		PerPage:  p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", logs, total, p)
}
