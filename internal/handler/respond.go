package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studio-backend/internal/apperr"
	"studio-backend/internal/logging"
	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/pkg/pagination"
	"studio-backend/pkg/response"
)

var timeNow = time.Now

// fail writes err as the standard envelope. Internal details only reach the log.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).WithError(err).Error("request failed")
	}
	c.JSON(status, response.Error(apperr.Message(err), apperr.FieldsOf(err)))
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, response.Success(message, data))
}

func created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, response.Success(message, data))
}

func paged(c *gin.Context, message string, items interface{}, total int64, p pagination.Params) {
	success(c, message, response.Page{Items: items, Total: total, Page: p.Page, PerPage: p.Limit})
}

// operation writes a device operation result. Device failures are part of the
// result, so the status is 200 either way.
func operation(c *gin.Context, res *model.OperationResult) {
	c.JSON(http.StatusOK, response.Response{Success: res.Success, Message: res.Message, Data: res.Data})
}

// callerOf returns the authenticated caller. Routes without RequireRole never
// reach a handler that calls it.
func callerOf(c *gin.Context) model.Caller {
	caller, _ := middleware.CallerFrom(c)
	return caller
}

// bind decodes the JSON body. A body that does not decode is a field error on
// "body"; an empty body leaves req untouched.
func bind(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, apperr.Field("body", "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, apperr.Field(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fail(c, apperr.Field(name, "must be a valid UUID"))
		return nil, false
	}
	return &id, true
}

func queryDate(c *gin.Context, name string, loc *time.Location) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	d, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		fail(c, apperr.Field(name, "must be a date in YYYY-MM-DD format"))
		return nil, false
	}
	return &d, true
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}
