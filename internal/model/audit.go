package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionCreateUser       = "CREATE_USER"
	ActionCreateSong       = "CREATE_SONG"
	ActionCreateSubmission = "CREATE_SUBMISSION"
	ActionUpdateSubmission = "UPDATE_SUBMISSION"
	ActionDeleteSubmission = "DELETE_SUBMISSION"
	ActionTransition       = "SUBMISSION_TRANSITION"
	ActionCreateMachine    = "CREATE_ATTENDANCE_MACHINE"
	ActionUpdateMachine    = "UPDATE_ATTENDANCE_MACHINE"
	ActionDeleteMachine    = "DELETE_ATTENDANCE_MACHINE"
	ActionCreateEmployee   = "CREATE_EMPLOYEE"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for scheduled jobs
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// TransitionDetails is the payload of an ActionTransition audit row
type TransitionDetails struct {
	Action string `json:"action"`
	From   string `json:"from"`
	To     string `json:"to"`
	Notes  string `json:"notes,omitempty"`
}
