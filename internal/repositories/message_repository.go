package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, parent_id, body, is_read, edited_by, sent_at, edited_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db sqlx.ExtContext
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{db: db}
}

type pagedMessage struct {
	models.Message
	Total int `db:"total"`
}

// CreateMessage stores a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.ParentID, msg.Body, msg.IsRead, msg.EditedByID, msg.SentAt, msg.EditedAt)
	return err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	return r.getMessage(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
}

// GetMessageForUpdate retrieves a message and row-locks it for the running transaction.
func (r *MessageRepo) GetMessageForUpdate(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	return r.getMessage(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1 FOR UPDATE`, messageID)
}

func (r *MessageRepo) getMessage(ctx context.Context, query string, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, r.db, &msg, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListConversationMessages returns the conversation's messages in send order.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	query := `SELECT ` + messageColumns + `, COUNT(*) OVER() AS total FROM messages WHERE conversation_id=$1`
	return r.listPaged(ctx, query, []any{conversationID}, filter)
}

// ListMessagesForUser returns messages of every conversation the user takes part in.
func (r *MessageRepo) ListMessagesForUser(ctx context.Context, userID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	query := `SELECT ` + messageColumns + `, COUNT(*) OVER() AS total FROM messages
        WHERE conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id=$1)`
	return r.listPaged(ctx, query, []any{userID}, filter)
}

func (r *MessageRepo) listPaged(ctx context.Context, query string, args []any, filter models.MessageFilter) ([]models.Message, int, error) {
	if filter.SenderID != nil {
		args = append(args, *filter.SenderID)
		query += fmt.Sprintf(" AND sender_id=$%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND sent_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		query += fmt.Sprintf(" AND sent_at <= $%d", len(args))
	}
	query += " ORDER BY sent_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []pagedMessage
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	msgs := make([]models.Message, 0, len(rows))
	total := 0
	for _, row := range rows {
		msgs = append(msgs, row.Message)
		total = row.Total
	}
	return msgs, total, nil
}

// CountConversationMessages returns the number of messages in a conversation.
func (r *MessageRepo) CountConversationMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, `SELECT COUNT(*) FROM messages WHERE conversation_id=$1`, conversationID)
	return count, err
}

// LastConversationMessage returns the newest message or nil for an empty conversation.
func (r *MessageRepo) LastConversationMessage(ctx context.Context, conversationID uuid.UUID) (*models.Message, error) {
	msg, err := r.getMessage(ctx, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 ORDER BY sent_at DESC, id DESC LIMIT 1`, conversationID)
	if errors.Is(err, ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListReplies returns direct replies to any of parentIDs in send order.
func (r *MessageRepo) ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]models.Message, error) {
	if len(parentIDs) == 0 {
		return []models.Message{}, nil
	}
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, `SELECT `+messageColumns+` FROM messages WHERE parent_id = ANY($1::uuid[]) ORDER BY sent_at ASC, id ASC`, uuidArray(parentIDs))
	return msgs, err
}

// ListUnreadForUser returns unread messages addressed to the user.
func (r *MessageRepo) ListUnreadForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE is_read = FALSE
        AND receiver_id = $1
        ORDER BY sent_at ASC, id ASC`
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, query, userID)
	return msgs, err
}

// UpdateMessageBody replaces the body and records the editor.
func (r *MessageRepo) UpdateMessageBody(ctx context.Context, messageID uuid.UUID, body string, editorID uuid.UUID, editedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET body=$2, edited_by=$3, edited_at=$4 WHERE id=$1`, messageID, body, editorID, editedAt)
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrMessageNotFound)
}

// MarkRead sets the read flag; marking a read message again is a no-op.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrMessageNotFound)
}

// MessageSubtree returns the message and all replies below it.
func (r *MessageRepo) MessageSubtree(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	query := `WITH RECURSIVE subtree AS (
            SELECT id FROM messages WHERE id=$1
            UNION ALL
            SELECT m.id FROM messages m INNER JOIN subtree s ON m.parent_id = s.id
        ) SELECT id FROM subtree`
	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, messageID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrMessageNotFound
	}
	return ids, nil
}

// MessagesOfUser returns messages sent or received by the user and the replies to them.
func (r *MessageRepo) MessagesOfUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	query := `WITH RECURSIVE owned AS (
            SELECT id FROM messages WHERE sender_id=$1 OR receiver_id=$1
            UNION
            SELECT m.id FROM messages m INNER JOIN owned o ON m.parent_id = o.id
        ) SELECT ` + messageColumns + ` FROM messages WHERE id IN (SELECT id FROM owned)
        ORDER BY sent_at ASC, id ASC`
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, query, userID)
	return msgs, err
}

// DeleteMessages removes the given messages.
func (r *MessageRepo) DeleteMessages(ctx context.Context, messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1::uuid[])`, uuidArray(messageIDs))
	return err
}

// ClearEditor nulls edited_by references to the user.
func (r *MessageRepo) ClearEditor(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET edited_by = NULL WHERE edited_by=$1`, userID)
	return err
}
