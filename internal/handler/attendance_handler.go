package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/pkg/pagination"
)

type AttendanceHandler struct {
	attendance service.AttendanceService
	sync       service.AttendanceSyncService
	auth       *middleware.Auth
	loc        *time.Location
}

func NewAttendanceHandler(attendance service.AttendanceService, sync service.AttendanceSyncService, auth *middleware.Auth, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{attendance: attendance, sync: sync, auth: auth, loc: loc}
}

func (h *AttendanceHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/attendance")
	group.Use(h.auth.RequireRole(model.RoleHR, model.RoleAdmin))
	{
		group.GET("", h.ListDaily)
		group.POST("/process", h.Process)
		group.GET("/summary", h.Summary)
		group.GET("/employees", h.ListEmployees)
		group.POST("/employees", h.CreateEmployee)
	}
}

// ListDaily handles GET /api/attendance
// @Summary      Daily attendance rows
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        date         query     string  false  "Date (YYYY-MM-DD)"
// @Param        employee_id  query     string  false  "Employee ID"
// @Param        status       query     string  false  "present_on_time, present_late, absent or present"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        per_page     query     int     false  "Items per page (default 15)"
// @Success      200          {object}  response.Response{data=response.Page}
// @Failure      422          {object}  response.Response
// @Router       /api/attendance [get]
func (h *AttendanceHandler) ListDaily(c *gin.Context) {
	date, valid := queryDate(c, "date", h.loc)
	if !valid {
		return
	}
	employeeID, valid := queryUUID(c, "employee_id")
	if !valid {
		return
	}
	p := pagination.Parse(c)

	rows, total, err := h.attendance.ListDaily(c.Request.Context(), callerOf(c), service.AttendanceQuery{
		Date:       date,
		EmployeeID: employeeID,
		Status:     c.Query("status"),
		Page:       p.Page,
		PerPage:    p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", rows, total, p)
}

// Process handles POST /api/attendance/process
// @Summary      Process unprocessed punches
// @Description  Without a date every unprocessed punch is processed. With a date only that day is, and absences are filled for it.
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        date  query     string  false  "Date (YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=model.PunchProcessResult}
// @Router       /api/attendance/process [post]
func (h *AttendanceHandler) Process(c *gin.Context) {
	date, valid := queryDate(c, "date", h.loc)
	if !valid {
		return
	}
	res, err := h.sync.Process(c.Request.Context(), callerOf(c), date)
	if err != nil {
		fail(c, err)
		return
	}
	operation(c, res)
}

// Summary handles GET /api/attendance/summary
// @Summary      Monthly attendance summary
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        month  query     string  false  "Month (YYYY-MM), default current month"
// @Success      200    {object}  response.Response{data=service.MonthlySummary}
// @Failure      422    {object}  response.Response
// @Router       /api/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	month := c.DefaultQuery("month", timeNow().In(h.loc).Format("2006-01"))
	sum, err := h.attendance.Summary(c.Request.Context(), callerOf(c), month)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", sum)
}

// ListEmployees handles GET /api/attendance/employees
// @Summary      List employees
// @Tags         attendance
// @Produce      json
// @Security     BearerAuth
// @Param        search    query     string  false  "Name or PIN contains"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        per_page  query     int     false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/attendance/employees [get]
func (h *AttendanceHandler) ListEmployees(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.attendance.ListEmployees(c.Request.Context(), callerOf(c), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", items, total, p)
}

// CreateEmployee handles POST /api/attendance/employees
// @Summary      Add an employee
// @Tags         attendance
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.EmployeeRequest  true  "Employee"
// @Success      201      {object}  response.Response{data=model.Employee}
// @Failure      422      {object}  response.Response
// @Router       /api/attendance/employees [post]
func (h *AttendanceHandler) CreateEmployee(c *gin.Context) {
	var req service.EmployeeRequest
	if !bind(c, &req) {
		return
	}
	e, err := h.attendance.CreateEmployee(c.Request.Context(), callerOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Employee created", e)
}
