package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db sqlx.ExtContext
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db sqlx.ExtContext) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification stores a notification.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, message_id, is_seen, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.MessageID, n.IsSeen, n.CreatedAt)
	return err
}

// ListNotifications returns the user's notifications, newest first.
func (r *NotificationRepo) ListNotifications(ctx context.Context, userID uuid.UUID, unseenOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, message_id, is_seen, created_at FROM notifications WHERE user_id=$1`
	if unseenOnly {
		query += ` AND is_seen = FALSE`
	}
	query += ` ORDER BY created_at DESC, id ASC`
	var list []models.Notification
	err := sqlx.SelectContext(ctx, r.db, &list, query, userID)
	return list, err
}

// MarkSeen flags a notification owned by userID as seen.
func (r *NotificationRepo) MarkSeen(ctx context.Context, notificationID, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_seen = TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrNotificationNotFound)
}

// DeleteNotificationsForMessages removes notifications pointing at the given messages.
func (r *NotificationRepo) DeleteNotificationsForMessages(ctx context.Context, messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE message_id = ANY($1::uuid[])`, uuidArray(messageIDs))
	return err
}

// DeleteNotificationsForUser removes every notification targeted at the user.
func (r *NotificationRepo) DeleteNotificationsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id=$1`, userID)
	return err
}
