package service

import (
	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/workflow"
)

// RoleInfo describes what a role may do in the studio.
type RoleInfo struct {
	Name        model.Role        `json:"name"`
	Description string            `json:"description"`
	Actions     []workflow.Action `json:"actions"`
	Transitions []workflow.Edge   `json:"transitions"`
	Areas       []string          `json:"areas"`
}

var roleDescriptions = map[model.Role]string{
	model.RoleMusicArranger: "Creates song requests and delivers arrangements",
	model.RoleProducer:      "Reviews requests, arrangements and final output",
	model.RoleSoundEngineer: "Mixes and masters approved arrangements",
	model.RoleCreative:      "Prepares scripts, storyboards and budgets",
	model.RoleSinger:        "Performer account linked to a performer record",
	model.RoleHR:            "Manages attendance machines and employees",
	model.RoleAdmin:         "Manages users and reads the audit trail",
}

var roleAreas = map[model.Role][]string{
	model.RoleMusicArranger: {"music-workflow"},
	model.RoleProducer:      {"music-workflow", "catalog", "statistics"},
	model.RoleSoundEngineer: {"music-workflow"},
	model.RoleCreative:      {"music-workflow"},
	model.RoleSinger:        {"catalog"},
	model.RoleHR:            {"attendance"},
	model.RoleAdmin:         {"users", "audit", "attendance", "catalog", "statistics"},
}

// RoleService exposes the closed role set. Roles are not stored, so there
// is nothing to create or edit.
type RoleService interface {
	ListRoles() []RoleInfo
	GetRole(name string) (*RoleInfo, error)
}

type roleService struct{}

func NewRoleService() RoleService {
	return roleService{}
}

func (roleService) ListRoles() []RoleInfo {
	out := make([]RoleInfo, 0, len(model.AllRoles))
	for _, r := range model.AllRoles {
		out = append(out, describeRole(r))
	}
	return out
}

func (roleService) GetRole(name string) (*RoleInfo, error) {
	r, err := model.ParseRole(name)
	if err != nil {
		return nil, apperr.NotFound("role")
	}
	info := describeRole(r)
	return &info, nil
}

func describeRole(r model.Role) RoleInfo {
	info := RoleInfo{
		Name:        r,
		Description: roleDescriptions[r],
		Actions:     []workflow.Action{},
		Transitions: workflow.Edges(r),
		Areas:       roleAreas[r],
	}
	if info.Transitions == nil {
		info.Transitions = []workflow.Edge{}
	}
	for _, rule := range workflow.Rules() {
		if rule.Role == r {
			info.Actions = append(info.Actions, rule.Action)
		}
	}
	return info
}
