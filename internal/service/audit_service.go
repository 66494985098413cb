package service

import (
	"context"
	"time"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/pkg/pagination"
)

type AuditLogResponse struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Username   string      `json:"username"`
	Action     string      `json:"action"`
	EntityID   string      `json:"entity_id"`
	EntityName string      `json:"entity_name"`
	Details    interface{} `json:"details"`
	CreatedAt  string      `json:"created_at"`
}

type AuditQuery struct {
	Action   string
	EntityID string
	Page     int
	PerPage  int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, caller model.Caller, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns a page of audit rows, newest first, with the acting user resolved.
func (s *auditService) GetAuditLogs(ctx context.Context, caller model.Caller, q AuditQuery) ([]AuditLogResponse, int64, error) {
	if !caller.Is(model.RoleAdmin) {
		return nil, 0, apperr.Forbidden("only admin can read the audit trail")
	}
	p := pagination.Normalize(q.Page, q.PerPage)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:   q.Action,
		EntityID: q.EntityID,
		Offset:   p.Offset,
		Limit:    p.Limit,
	})
	if err != nil {
		return nil, 0, err
	}
	return mapAuditLogs(logs), total, nil
}

func mapAuditLogs(logs []model.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}
	return res
}
