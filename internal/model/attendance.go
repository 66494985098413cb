package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MachineStatusUnknown = "unknown"
	MachineStatusOnline  = "online"
	MachineStatusOffline = "offline"
)

// AttendanceMachine is a registered biometric terminal
type AttendanceMachine struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	IPAddress    string     `gorm:"type:varchar(45);not null" json:"ip_address"`
	Port         int        `gorm:"not null;default:80" json:"port"`
	CommKey      string     `gorm:"type:varchar(50);default:'0'" json:"-"`
	SerialNumber string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"serial_number"`
	Location     string     `gorm:"type:varchar(255)" json:"location"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	Status       string     `gorm:"type:varchar(20);not null;default:'unknown'" json:"status"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Employee is the roster entry matched against terminal punches by PIN
type Employee struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	PIN        string     `gorm:"column:pin;type:varchar(20);uniqueIndex;not null" json:"pin"`
	Department string     `gorm:"type:varchar(100)" json:"department"`
	IsActive   bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AttendanceLog is a raw punch as ingested from a terminal
type AttendanceLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MachineID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_logs_punch,priority:1" json:"machine_id"`
	UserPIN     string     `gorm:"column:user_pin;type:varchar(20);not null;uniqueIndex:idx_attendance_logs_punch,priority:2;index" json:"user_pin"`
	PunchedAt   time.Time  `gorm:"not null;uniqueIndex:idx_attendance_logs_punch,priority:3;index" json:"punched_at"`
	VerifyMode  int        `json:"verify_mode"`
	InOutMode   int        `json:"in_out_mode"`
	IsProcessed bool       `gorm:"not null;default:false;index" json:"is_processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	AttendancePresentOnTime = "present_on_time"
	AttendancePresentLate   = "present_late"
	AttendanceAbsent        = "absent"
	AttendancePresent       = "present"

	AttendanceSourceMachine     = "machine"
	AttendanceSourceSynthesized = "synthesized"
)

// Attendance is the reconciled daily row, unique per (employee, date)
type Attendance struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EmployeeID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_employee_date,priority:1" json:"employee_id"`
	Employee    *Employee  `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Date        time.Time  `gorm:"type:date;not null;uniqueIndex:idx_attendance_employee_date,priority:2;index" json:"date"`
	CheckIn     *time.Time `json:"check_in"`
	CheckOut    *time.Time `json:"check_out"`
	Status      string     `gorm:"type:varchar(20);not null;index" json:"status"`
	LateMinutes int        `gorm:"not null;default:0" json:"late_minutes"`
	WorkMinutes int        `gorm:"not null;default:0" json:"work_minutes"`
	PunchCount  int        `gorm:"not null;default:0" json:"punch_count"`
	Source      string     `gorm:"type:varchar(20);not null" json:"source"`
	Notes       string     `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	SyncOpTestConnection = "test_connection"
	SyncOpPullAttendance = "pull_attendance"
	SyncOpProcess        = "process"
	SyncOpSyncUser       = "sync_user"
	SyncOpSyncAllUsers   = "sync_all_users"
	SyncOpRemoveUser     = "remove_user"
	SyncOpRestart        = "restart"
	SyncOpClearData      = "clear_data"
	SyncOpSyncTime       = "sync_time"
)

// MachineSyncLog records the outcome of every device operation
type MachineSyncLog struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MachineID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"machine_id"`
	Operation       string         `gorm:"type:varchar(40);not null;index" json:"operation"`
	Success         bool           `gorm:"not null" json:"success"`
	Message         string         `gorm:"type:text" json:"message"`
	RecordsFetched  int            `gorm:"not null;default:0" json:"records_fetched"`
	RecordsInserted int            `gorm:"not null;default:0" json:"records_inserted"`
	Details         datatypes.JSON `gorm:"type:jsonb" json:"details"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt      time.Time      `gorm:"not null" json:"finished_at"`
}

// OperationResult is the structured outcome of a device operation.
// Device failures are reported here instead of returned as errors.
type OperationResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
