package service

import (
	"context"

	"github.com/google/uuid"

	"studio-backend/internal/model"
	"studio-backend/internal/repository"
	"studio-backend/pkg/pagination"
)

// NotificationService is the caller's own inbox. Every operation is scoped to
// caller.ID, so no role check applies.
type NotificationService interface {
	List(ctx context.Context, caller model.Caller, unreadOnly bool, page, limit int) ([]model.Notification, int64, error)
	UnreadCount(ctx context.Context, caller model.Caller) (int64, error)
	MarkRead(ctx context.Context, caller model.Caller, id uuid.UUID) error
	MarkAllRead(ctx context.Context, caller model.Caller) (int64, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, caller model.Caller, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	p := pagination.Normalize(page, limit)
	return s.repo.ListForUser(ctx, caller.ID, unreadOnly, p.Offset, p.Limit)
}

func (s *notificationService) UnreadCount(ctx context.Context, caller model.Caller) (int64, error) {
	return s.repo.CountUnread(ctx, caller.ID)
}

func (s *notificationService) MarkRead(ctx context.Context, caller model.Caller, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, caller.ID)
}

func (s *notificationService) MarkAllRead(ctx context.Context, caller model.Caller) (int64, error) {
	return s.repo.MarkAllRead(ctx, caller.ID)
}
