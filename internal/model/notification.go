package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification is a persisted inbox entry for a single recipient
type Notification struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_notifications_user_read,priority:1" json:"user_id"`
	Title        string     `gorm:"type:varchar(255);not null" json:"title"`
	Message      string     `gorm:"type:text;not null" json:"message"`
	Type         string     `gorm:"type:varchar(20);not null;default:'info'" json:"type"`
	SubmissionID *uuid.UUID `gorm:"type:uuid;index" json:"submission_id"`
	IsRead       bool       `gorm:"not null;default:false;index:idx_notifications_user_read,priority:2" json:"is_read"`
	ReadAt       *time.Time `json:"read_at"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}
