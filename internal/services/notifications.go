package services

import (
	"context"

	"github.com/google/uuid"

	"messaging-service/internal/authz"
	"messaging-service/internal/models"
)

// NotificationService exposes the principal's notification inbox.
type NotificationService struct {
	deps Deps
}

func NewNotificationService(deps Deps) *NotificationService {
	return &NotificationService{deps: deps}
}

func (s *NotificationService) List(ctx context.Context, p *authz.Principal, unseenOnly bool) ([]models.Notification, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	return s.deps.Store.Notifications().ListNotifications(ctx, p.UserID, unseenOnly)
}

// MarkSeen flags one of the principal's notifications as seen.
func (s *NotificationService) MarkSeen(ctx context.Context, p *authz.Principal, notificationID uuid.UUID) error {
	if err := authz.RequireAuthenticated(p); err != nil {
		return err
	}
	return s.deps.Store.Notifications().MarkSeen(ctx, notificationID, p.UserID)
}
