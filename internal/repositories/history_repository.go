package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// HistoryRepo is a sqlx implementation of HistoryRepository.
type HistoryRepo struct {
	db sqlx.ExtContext
}

// NewHistoryRepo constructs a HistoryRepo.
func NewHistoryRepo(db sqlx.ExtContext) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// CreateHistory appends an edit record.
func (r *HistoryRepo) CreateHistory(ctx context.Context, entry *models.MessageHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.EditedAt.IsZero() {
		entry.EditedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_history (id, message_id, old_content, edited_by, edited_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.MessageID, entry.OldContent, entry.EditedByID, entry.EditedAt)
	return err
}

// ListHistory returns the edits of a message, oldest first.
func (r *HistoryRepo) ListHistory(ctx context.Context, messageID uuid.UUID) ([]models.MessageHistory, error) {
	var entries []models.MessageHistory
	err := sqlx.SelectContext(ctx, r.db, &entries, `SELECT id, message_id, old_content, edited_by, edited_at FROM message_history WHERE message_id=$1 ORDER BY edited_at ASC, id ASC`, messageID)
	return entries, err
}

// DeleteHistoryForMessages removes the edit records of the given messages.
func (r *HistoryRepo) DeleteHistoryForMessages(ctx context.Context, messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_history WHERE message_id = ANY($1::uuid[])`, uuidArray(messageIDs))
	return err
}

// ClearHistoryEditor nulls edited_by references to the user.
func (r *HistoryRepo) ClearHistoryEditor(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE message_history SET edited_by = NULL WHERE edited_by=$1`, userID)
	return err
}
