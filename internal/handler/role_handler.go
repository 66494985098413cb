package handler

import (
	"github.com/gin-gonic/gin"

	"studio-backend/internal/middleware"
	"studio-backend/internal/service"
)

type RoleHandler struct {
	roleService service.RoleService
	auth        *middleware.Auth
}

func NewRoleHandler(roleService service.RoleService, auth *middleware.Auth) *RoleHandler {
	return &RoleHandler{roleService: roleService, auth: auth}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	roles.Use(h.auth.RequireRole())
	{
		roles.GET("", h.ListRoles)
		roles.GET("/:name", h.GetRole)
	}
}

// ListRoles returns every role with the workflow actions it owns
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleInfo}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	success(c, "", h.roleService.ListRoles())
}

// @Summary      Get a role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        name  path      string  true  "Role name, e.g. producer"
// @Success      200   {object}  response.Response{data=service.RoleInfo}
// @Failure      404   {object}  response.Response
// @Router       /api/roles/{name} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", role)
}
