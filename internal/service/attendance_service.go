package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"studio-backend/internal/apperr"
	"studio-backend/internal/attendance"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/pkg/pagination"
)

type MachineRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	IPAddress    string `json:"ip_address" validate:"required,ip|hostname"`
	Port         int    `json:"port" validate:"omitempty,min=1,max=65535"`
	CommKey      string `json:"comm_key" validate:"max=50"`
	SerialNumber string `json:"serial_number" validate:"required,max=100"`
	Location     string `json:"location" validate:"max=255"`
	IsActive     *bool  `json:"is_active"`
}

type EmployeeRequest struct {
	Name       string     `json:"name" validate:"required,max=255"`
	PIN        string     `json:"pin" validate:"required,max=20,numeric"`
	Department string     `json:"department" validate:"max=100"`
	UserID     *uuid.UUID `json:"user_id"`
}

type AttendanceQuery struct {
	Date       *time.Time
	EmployeeID *uuid.UUID
	Status     string
	Page       int
	PerPage    int
}

type MonthlySummary struct {
	Month     string                    `json:"month"`
	Employees []model.AttendanceSummary `json:"employees"`
}

// AttendanceService covers the attendance records that do not talk to a device.
type AttendanceService interface {
	ListMachines(ctx context.Context, caller model.Caller, search string, page, limit int) ([]model.AttendanceMachine, int64, error)
	GetMachine(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.AttendanceMachine, error)
	CreateMachine(ctx context.Context, caller model.Caller, req MachineRequest) (*model.AttendanceMachine, error)
	UpdateMachine(ctx context.Context, caller model.Caller, id uuid.UUID, req MachineRequest) (*model.AttendanceMachine, error)
	DeleteMachine(ctx context.Context, caller model.Caller, id uuid.UUID) error

	ListEmployees(ctx context.Context, caller model.Caller, search string, page, limit int) ([]model.Employee, int64, error)
	CreateEmployee(ctx context.Context, caller model.Caller, req EmployeeRequest) (*model.Employee, error)

	ListDaily(ctx context.Context, caller model.Caller, q AttendanceQuery) ([]model.Attendance, int64, error)
	Summary(ctx context.Context, caller model.Caller, month string) (*MonthlySummary, error)
}

type attendanceService struct {
	machines   repository.MachineRepository
	employees  repository.EmployeeRepository
	attendance repository.AttendanceRepository
	stats      repository.StatisticsRepository
	audit      repository.AuditRepository
	tx         repository.TransactionManager
	loc        *time.Location
}

func NewAttendanceService(
	machines repository.MachineRepository,
	employees repository.EmployeeRepository,
	attendanceRepo repository.AttendanceRepository,
	stats repository.StatisticsRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	loc *time.Location,
) AttendanceService {
	if loc == nil {
		loc = time.Local
	}
	return &attendanceService{
		machines:   machines,
		employees:  employees,
		attendance: attendanceRepo,
		stats:      stats,
		audit:      audit,
		tx:         tx,
		loc:        loc,
	}
}

func (s *attendanceService) logAudit(ctx context.Context, caller model.Caller, action, entityID, name string, details interface{}) error {
	entry := &model.AuditLog{Action: action, EntityID: entityID, EntityName: name}
	if details != nil {
		raw, _ := json.Marshal(details)
		entry.Details = datatypes.JSON(raw)
	}
	if caller.ID != uuid.Nil {
		id := caller.ID
		entry.UserID = &id
	}
	return s.audit.Log(ctx, entry)
}

func (s *attendanceService) ListMachines(ctx context.Context, caller model.Caller, search string, page, limit int) ([]model.AttendanceMachine, int64, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, 0, err
	}
	p := pagination.Normalize(page, limit)
	return s.machines.List(ctx, strings.TrimSpace(search), p.Offset, p.Limit)
}

func (s *attendanceService) GetMachine(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.AttendanceMachine, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	return s.machines.GetByID(ctx, id)
}

func normalizeMachine(req *MachineRequest) {
	req.Name = strings.TrimSpace(req.Name)
	req.IPAddress = strings.TrimSpace(req.IPAddress)
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	req.CommKey = strings.TrimSpace(req.CommKey)
	if req.Port == 0 {
		req.Port = 80
	}
	if req.CommKey == "" {
		req.CommKey = "0"
	}
}

func applyMachine(m *model.AttendanceMachine, req MachineRequest) {
	m.Name = req.Name
	m.IPAddress = req.IPAddress
	m.Port = req.Port
	m.CommKey = req.CommKey
	m.SerialNumber = req.SerialNumber
	m.Location = strings.TrimSpace(req.Location)
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
}

func (s *attendanceService) CreateMachine(ctx context.Context, caller model.Caller, req MachineRequest) (*model.AttendanceMachine, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	normalizeMachine(&req)
	if err := validatePayload(req); err != nil {
		return nil, err
	}
	m := &model.AttendanceMachine{IsActive: true, Status: model.MachineStatusUnknown}
	applyMachine(m, req)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.machines.Create(txCtx, m); err != nil {
			return err
		}
		return s.logAudit(txCtx, caller, model.ActionCreateMachine, m.ID.String(), m.Name,
			map[string]interface{}{"ip_address": m.IPAddress, "port": m.Port, "serial_number": m.SerialNumber})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *attendanceService) UpdateMachine(ctx context.Context, caller model.Caller, id uuid.UUID, req MachineRequest) (*model.AttendanceMachine, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	m, err := s.machines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	normalizeMachine(&req)
	if err := validatePayload(req); err != nil {
		return nil, err
	}
	applyMachine(m, req)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.machines.Update(txCtx, m); err != nil {
			return err
		}
		return s.logAudit(txCtx, caller, model.ActionUpdateMachine, m.ID.String(), m.Name,
			map[string]interface{}{"ip_address": m.IPAddress, "port": m.Port, "is_active": m.IsActive})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *attendanceService) DeleteMachine(ctx context.Context, caller model.Caller, id uuid.UUID) error {
	if err := requireAttendanceRole(caller); err != nil {
		return err
	}
	m, err := s.machines.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.machines.Delete(txCtx, id); err != nil {
			return err
		}
		return s.logAudit(txCtx, caller, model.ActionDeleteMachine, id.String(), m.Name, nil)
	})
}

func (s *attendanceService) ListEmployees(ctx context.Context, caller model.Caller, search string, page, limit int) ([]model.Employee, int64, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, 0, err
	}
	p := pagination.Normalize(page, limit)
	return s.employees.List(ctx, strings.TrimSpace(search), p.Offset, p.Limit)
}

func (s *attendanceService) CreateEmployee(ctx context.Context, caller model.Caller, req EmployeeRequest) (*model.Employee, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.PIN = strings.TrimSpace(req.PIN)
	if err := validatePayload(req); err != nil {
		return nil, err
	}
	e := &model.Employee{
		UserID:     req.UserID,
		Name:       req.Name,
		PIN:        req.PIN,
		Department: strings.TrimSpace(req.Department),
		IsActive:   true,
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.employees.Create(txCtx, e); err != nil {
			return err
		}
		return s.logAudit(txCtx, caller, model.ActionCreateEmployee, e.ID.String(), e.Name,
			map[string]interface{}{"pin": e.PIN, "department": e.Department})
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *attendanceService) ListDaily(ctx context.Context, caller model.Caller, q AttendanceQuery) ([]model.Attendance, int64, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, 0, err
	}
	switch q.Status {
	case "", model.AttendancePresentOnTime, model.AttendancePresentLate, model.AttendanceAbsent, model.AttendancePresent:
	default:
		return nil, 0, apperr.Field("status", "must be one of: present_on_time, present_late, absent, present")
	}
	p := pagination.Normalize(q.Page, q.PerPage)
	filter := repository.AttendanceFilter{
		EmployeeID: q.EmployeeID,
		Status:     q.Status,
		Offset:     p.Offset,
		Limit:      p.Limit,
	}
	if q.Date != nil {
		filter.From = attendance.DayOf(*q.Date, s.loc)
		filter.To = filter.From.AddDate(0, 0, 1)
	}
	return s.attendance.List(ctx, filter)
}

// Summary aggregates one calendar month, given as YYYY-MM.
func (s *attendanceService) Summary(ctx context.Context, caller model.Caller, month string) (*MonthlySummary, error) {
	if err := requireAttendanceRole(caller); err != nil {
		return nil, err
	}
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, apperr.Field("month", "must be in YYYY-MM format")
	}
	end := start.AddDate(0, 1, 0)

	rows, err := s.stats.MonthlySummary(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].WorkHours = attendance.WorkHours(rows[i].TotalWorkMinutes)
	}
	return &MonthlySummary{Month: start.Format("2006-01"), Employees: rows}, nil
}
