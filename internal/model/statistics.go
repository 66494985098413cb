package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttendanceSummary aggregates one employee's month
type AttendanceSummary struct {
	EmployeeID       uuid.UUID `json:"employee_id"`
	EmployeeName     string    `json:"employee_name"`
	PIN              string    `gorm:"column:pin" json:"pin"`
	PresentOnTime    int       `json:"present_on_time"`
	PresentLate      int       `json:"present_late"`
	Present          int       `json:"present"`
	Absent           int       `json:"absent"`
	TotalLateMinutes int       `json:"total_late_minutes"`
	TotalWorkMinutes int       `json:"total_work_minutes"`
	WorkHours        string    `json:"work_hours"`
}

// PunchProcessResult reports one processing run
type PunchProcessResult struct {
	LogsProcessed      int `json:"logs_processed"`
	AttendanceUpserted int `json:"attendance_upserted"`
	AbsentSynthesized  int `json:"absent_synthesized"`
	Unmatched          int `json:"unmatched"`
}

// BatchResult reports a partially tolerant batch device operation
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// StateCount is the number of submissions sitting in one state
type StateCount struct {
	State SubmissionState `json:"state"`
	Count int64           `json:"count"`
}

// PerformerRanking ranks approved singers by completed submissions
type PerformerRanking struct {
	PerformerID   uuid.UUID `json:"performer_id"`
	PerformerName string    `json:"performer_name"`
	Completed     int64     `json:"completed"`
}

// StudioStatistics is the producer dashboard for a time range
type StudioStatistics struct {
	TimeRangeStartDate time.Time          `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time          `json:"time_range_end_date"`
	Created            int64              `json:"created"`
	Completed          int64              `json:"completed"`
	Rejected           int64              `json:"rejected"`
	InProgress         int64              `json:"in_progress"`
	ByState            []StateCount       `json:"by_state"`
	TopPerformers      []PerformerRanking `json:"top_performers"`
	CreativeBudget     decimal.Decimal    `json:"creative_budget"`
}
