package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studio-backend/internal/middleware"
	"studio-backend/internal/model"
	"studio-backend/internal/service"
	"studio-backend/pkg/pagination"
)

type AttendanceMachineHandler struct {
	machines service.AttendanceService
	sync     service.AttendanceSyncService
	auth     *middleware.Auth
	loc      *time.Location
}

func NewAttendanceMachineHandler(machines service.AttendanceService, sync service.AttendanceSyncService, auth *middleware.Auth, loc *time.Location) *AttendanceMachineHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceMachineHandler{machines: machines, sync: sync, auth: auth, loc: loc}
}

func (h *AttendanceMachineHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/attendance-machines")
	group.Use(h.auth.RequireRole(model.RoleHR, model.RoleAdmin))
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.PUT("/:id", h.Update)
		group.DELETE("/:id", h.Delete)

		group.POST("/:id/test-connection", h.TestConnection)
		group.POST("/:id/pull-attendance", h.PullAttendance)
		group.POST("/:id/pull-attendance-process", h.PullAndProcess)
		group.POST("/:id/process", h.Process)
		group.POST("/:id/sync-all-users", h.SyncAllUsers)
		group.POST("/:id/sync-user/:employee_id", h.SyncUser)
		group.POST("/:id/remove-user/:pin", h.RemoveUser)
		group.POST("/:id/restart", h.Restart)
		group.POST("/:id/clear-data", h.ClearData)
		group.POST("/:id/sync-time", h.SyncTime)
		group.GET("/:id/sync-logs", h.SyncLogs)
	}
}

// List handles GET /api/attendance-machines
// @Summary      List attendance machines
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        search    query     string  false  "Name, IP or serial contains"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        per_page  query     int     false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/attendance-machines [get]
func (h *AttendanceMachineHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.machines.ListMachines(c.Request.Context(), callerOf(c), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", items, total, p)
}

// Create handles POST /api/attendance-machines
// @Summary      Register an attendance machine
// @Tags         attendance-machines
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.MachineRequest  true  "Machine"
// @Success      201      {object}  response.Response{data=model.AttendanceMachine}
// @Failure      422      {object}  response.Response
// @Router       /api/attendance-machines [post]
func (h *AttendanceMachineHandler) Create(c *gin.Context) {
	var req service.MachineRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.machines.CreateMachine(c.Request.Context(), callerOf(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "Attendance machine created", m)
}

// Get handles GET /api/attendance-machines/{id}
// @Summary      Get an attendance machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response{data=model.AttendanceMachine}
// @Failure      404  {object}  response.Response
// @Router       /api/attendance-machines/{id} [get]
func (h *AttendanceMachineHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	m, err := h.machines.GetMachine(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "", m)
}

// Update handles PUT /api/attendance-machines/{id}
// @Summary      Update an attendance machine
// @Tags         attendance-machines
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Machine ID"
// @Param        payload  body      service.MachineRequest  true  "Machine"
// @Success      200      {object}  response.Response{data=model.AttendanceMachine}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/attendance-machines/{id} [put]
func (h *AttendanceMachineHandler) Update(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.MachineRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.machines.UpdateMachine(c.Request.Context(), callerOf(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, "Attendance machine updated", m)
}

// Delete handles DELETE /api/attendance-machines/{id}
// @Summary      Delete an attendance machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/attendance-machines/{id} [delete]
func (h *AttendanceMachineHandler) Delete(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.machines.DeleteMachine(c.Request.Context(), callerOf(c), id); err != nil {
		fail(c, err)
		return
	}
	success(c, "Attendance machine deleted", nil)
}

type machineOp func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error)

func (h *AttendanceMachineHandler) run(c *gin.Context, op machineOp) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	res, err := op(c, callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	operation(c, res)
}

// TestConnection handles POST /api/attendance-machines/{id}/test-connection
// @Summary      Test the connection to a machine
// @Description  Reads the device clock. Device failures come back with success=false.
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Router       /api/attendance-machines/{id}/test-connection [post]
func (h *AttendanceMachineHandler) TestConnection(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.TestConnection(c.Request.Context(), caller, id)
	})
}

// PullAttendance handles POST /api/attendance-machines/{id}/pull-attendance
// @Summary      Pull punches from a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true   "Machine ID"
// @Param        date  query     string  false  "Only punches of this date (YYYY-MM-DD)"
// @Success      200   {object}  response.Response
// @Router       /api/attendance-machines/{id}/pull-attendance [post]
func (h *AttendanceMachineHandler) PullAttendance(c *gin.Context) {
	date, valid := queryDate(c, "date", h.loc)
	if !valid {
		return
	}
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.PullAttendance(c.Request.Context(), caller, id, date)
	})
}

// PullAndProcess handles POST /api/attendance-machines/{id}/pull-attendance-process
// @Summary      Pull punches and process them into attendance rows
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true   "Machine ID"
// @Param        date  query     string  false  "Only this date (YYYY-MM-DD)"
// @Success      200   {object}  response.Response
// @Router       /api/attendance-machines/{id}/pull-attendance-process [post]
func (h *AttendanceMachineHandler) PullAndProcess(c *gin.Context) {
	date, valid := queryDate(c, "date", h.loc)
	if !valid {
		return
	}
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.PullAndProcess(c.Request.Context(), caller, id, date)
	})
}

// Process handles POST /api/attendance-machines/{id}/process
// @Summary      Process one date
// @Description  Processes punches of the given date, today by default, and fills absences for it
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true   "Machine ID"
// @Param        date  query     string  false  "Date (YYYY-MM-DD), default today"
// @Success      200   {object}  response.Response
// @Router       /api/attendance-machines/{id}/process [post]
func (h *AttendanceMachineHandler) Process(c *gin.Context) {
	date, valid := queryDate(c, "date", h.loc)
	if !valid {
		return
	}
	if date == nil {
		today := timeNow().In(h.loc)
		date = &today
	}
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		if _, err := h.machines.GetMachine(c.Request.Context(), caller, id); err != nil {
			return nil, err
		}
		return h.sync.Process(c.Request.Context(), caller, date)
	})
}

// SyncAllUsers handles POST /api/attendance-machines/{id}/sync-all-users
// @Summary      Push every active employee to a machine
// @Description  Continues past failures and reports total, succeeded and failed counts
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response{data=model.BatchResult}
// @Router       /api/attendance-machines/{id}/sync-all-users [post]
func (h *AttendanceMachineHandler) SyncAllUsers(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.SyncAllUsers(c.Request.Context(), caller, id)
	})
}

// SyncUser handles POST /api/attendance-machines/{id}/sync-user/{employee_id}
// @Summary      Push one employee to a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id           path      string  true  "Machine ID"
// @Param        employee_id  path      string  true  "Employee ID"
// @Success      200          {object}  response.Response
// @Router       /api/attendance-machines/{id}/sync-user/{employee_id} [post]
func (h *AttendanceMachineHandler) SyncUser(c *gin.Context) {
	employeeID, valid := pathID(c, "employee_id")
	if !valid {
		return
	}
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.SyncUser(c.Request.Context(), caller, id, employeeID)
	})
}

// RemoveUser handles POST /api/attendance-machines/{id}/remove-user/{pin}
// @Summary      Remove a user from a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Param        pin  path      string  true  "Employee PIN"
// @Success      200  {object}  response.Response
// @Router       /api/attendance-machines/{id}/remove-user/{pin} [post]
func (h *AttendanceMachineHandler) RemoveUser(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.RemoveUser(c.Request.Context(), caller, id, c.Param("pin"))
	})
}

// Restart handles POST /api/attendance-machines/{id}/restart
// @Summary      Restart a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Router       /api/attendance-machines/{id}/restart [post]
func (h *AttendanceMachineHandler) Restart(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.Restart(c.Request.Context(), caller, id)
	})
}

// ClearData handles POST /api/attendance-machines/{id}/clear-data
// @Summary      Clear the punch records stored on a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Router       /api/attendance-machines/{id}/clear-data [post]
func (h *AttendanceMachineHandler) ClearData(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.ClearData(c.Request.Context(), caller, id)
	})
}

// SyncTime handles POST /api/attendance-machines/{id}/sync-time
// @Summary      Set the machine clock to server time
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Router       /api/attendance-machines/{id}/sync-time [post]
func (h *AttendanceMachineHandler) SyncTime(c *gin.Context) {
	h.run(c, func(c *gin.Context, caller model.Caller, id uuid.UUID) (*model.OperationResult, error) {
		return h.sync.SyncTime(c.Request.Context(), caller, id)
	})
}

// SyncLogs handles GET /api/attendance-machines/{id}/sync-logs
// @Summary      Device operation history of a machine
// @Tags         attendance-machines
// @Produce      json
// @Security     BearerAuth
// @Param        id        path      string  true   "Machine ID"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        per_page  query     int     false  "Items per page (default 15)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/attendance-machines/{id}/sync-logs [get]
func (h *AttendanceMachineHandler) SyncLogs(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	p := pagination.Parse(c)
	logs, total, err := h.sync.SyncLogs(c.Request.Context(), callerOf(c), id, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, "", logs, total, p)
}
