package handler

import (
	"github.com/gin-gonic/gin"

	"studio-backend/internal/middleware"
	"studio-backend/internal/service"
	"studio-backend/pkg/pagination"
)

type NotificationHandler struct {
	notifications service.NotificationService
	auth          *middleware.Auth
}

func NewNotificationHandler(notifications service.NotificationService, auth *middleware.Auth) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, auth: auth}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/music-workflow/notifications")
	group.Use(h.auth.RequireRole())
	{
		group.GET("", h.List)
		group.GET("/unread-count", h.UnreadCount)
		group.POST("/read-all", h.MarkAllRead)
		group.POST("/:id/read", h.MarkRead)
	}
}

// List handles GET /api/music-workflow/notifications
// @Summary      Notification inbox
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread_only  query     bool  false  "Only unread"
// @Param        page         query     int   false  "Page number (default 1)"
// @Param        per_page     query     int   false  "Items per page (default 15)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/music-workflow/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.notifications.List(c.Request.Context(), callerOf(c), queryBool(c, "unread_only"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", items, total, p)
}

// UnreadCount handles GET /api/music-workflow/notifications/unread-count
// @Summary      Unread notification count
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/music-workflow/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", gin.H{"unread": n})
}

// MarkRead handles POST /api/music-workflow/notifications/{id}/read
// @Summary      Mark one notification read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/music-workflow/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), callerOf(c), id); err != nil {
		fail(c, err)
		return
	}
	success(c, "Notification marked as read", nil)
}

// MarkAllRead handles POST /api/music-workflow/notifications/read-all
// @Summary      Mark every notification read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/music-workflow/notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "All notifications marked as read", gin.H{"updated": n})
}
