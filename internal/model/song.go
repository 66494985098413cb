package model

import (
	"time"

	"github.com/google/uuid"
)

// Song is a reference entity looked up by submissions
type Song struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title           string     `gorm:"type:varchar(255);not null;index" json:"title"`
	Artist          string     `gorm:"type:varchar(255)" json:"artist"`
	Genre           string     `gorm:"type:varchar(100)" json:"genre"`
	DurationSeconds int        `json:"duration_seconds"`
	CreatedBy       *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Performer is the single canonical singer identity
type Performer struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	Email     string     `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone     string     `gorm:"type:varchar(20)" json:"phone"`
	UserID    *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PerformerFromUser maps a singer account onto its performer record.
// An existing performer is linked and refreshed rather than duplicated.
func PerformerFromUser(u User, existing *Performer) (Performer, bool) {
	if u.Role != RoleSinger {
		return Performer{}, false
	}
	p := Performer{}
	if existing != nil {
		p = *existing
	}
	id := u.ID
	p.UserID = &id
	p.Email = u.Email
	if p.Name == "" {
		p.Name = u.Username
	}
	if u.Phone != "" {
		p.Phone = u.Phone
	}
	return p, true
}
