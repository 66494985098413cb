package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of actor roles
type Role string

const (
	RoleMusicArranger Role = "music_arranger"
	RoleProducer      Role = "producer"
	RoleSoundEngineer Role = "sound_engineer"
	RoleCreative      Role = "creative"
	RoleSinger        Role = "singer"
	RoleHR            Role = "hr"
	RoleAdmin         Role = "admin"
)

// AllRoles lists every role in display order
var AllRoles = []Role{
	RoleMusicArranger,
	RoleProducer,
	RoleSoundEngineer,
	RoleCreative,
	RoleSinger,
	RoleHR,
	RoleAdmin,
}

func (r Role) Valid() bool {
	switch r {
	case RoleMusicArranger, RoleProducer, RoleSoundEngineer, RoleCreative, RoleSinger, RoleHR, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole rejects anything outside the closed set
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Caller identifies who is invoking a service operation
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) Is(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// SystemCaller is used for scheduled and CLI-triggered jobs
var SystemCaller = Caller{ID: uuid.Nil, Role: RoleAdmin}
