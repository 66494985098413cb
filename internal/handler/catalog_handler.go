package handler

import (
	"github.com/gin-gonic/gin"

	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/pkg/pagination"
)

type CatalogHandler struct {
	catalogService service.CatalogService
	auth           *middleware.Auth
}

func NewCatalogHandler(catalogService service.CatalogService, auth *middleware.Auth) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, auth: auth}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/songs", h.auth.RequireRole(), h.ListSongs)
	router.POST("/songs", h.auth.RequireRole(model.RoleProducer, model.RoleAdmin), h.CreateSong)
	router.GET("/performers", h.auth.RequireRole(), h.ListPerformers)
}

// CreateSong handles POST /songs
// @Summary      Add a song
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateSongRequest  true  "Song"
// @Success      201      {object}  response.Response{data=model.Song}
// @Failure      422      {object}  response.Response
// @Router       /songs [post]
func (h *CatalogHandler) CreateSong(c *gin.Context) {
	var req service.CreateSongRequest
	if !bind(c, &req) {
		return
	}
	song, err := h.catalogService.CreateSong(c.Request.Context(), callerOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Song created", song)
}

// ListSongs handles GET /songs
// @Summary      List songs
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        search    query     string  false  "Title or artist contains"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        per_page  query     int     false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /songs [get]
func (h *CatalogHandler) ListSongs(c *gin.Context) {
	p := pagination.Parse(c)
	songs, total, err := h.catalogService.ListSongs(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", songs, total, p)
}

// ListPerformers handles GET /performers
// @Summary      List performers
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        page      query     int  false  "Page number (default 1)"
// @Param        per_page  query     int  false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /performers [get]
func (h *CatalogHandler) ListPerformers(c *gin.Context) {
	p := pagination.Parse(c)
	performers, total, err := h.catalogService.ListPerformers(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", performers, total, p)
}
