package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db sqlx.ExtContext
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db sqlx.ExtContext) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation inserts the conversation and its participant rows.
func (r *ConversationRepo) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $3)`, conv.ID, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return err
	}
	for _, userID := range conv.Participants {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ($1, $2, $3)`, conv.ID, userID, conv.CreatedAt); err != nil {
			return mapPQError(err)
		}
	}
	return nil
}

// GetConversation fetches a conversation with its participants.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.db, &conv, `SELECT id, created_at, updated_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if err := sqlx.SelectContext(ctx, r.db, &conv.Participants, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY joined_at ASC, user_id ASC`, conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// ListConversationsForUser returns the user's conversations, most recently updated first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	query := `SELECT c.id, c.created_at, c.updated_at FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1
        ORDER BY c.updated_at DESC, c.id ASC`
	if err := sqlx.SelectContext(ctx, r.db, &convs, query, userID); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	var members []struct {
		ConversationID uuid.UUID `db:"conversation_id"`
		UserID         uuid.UUID `db:"user_id"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &members, `SELECT conversation_id, user_id FROM conversation_participants WHERE conversation_id = ANY($1::uuid[]) ORDER BY joined_at ASC, user_id ASC`, uuidArray(ids)); err != nil {
		return nil, err
	}
	byConv := make(map[uuid.UUID][]uuid.UUID, len(convs))
	for _, m := range members {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m.UserID)
	}
	for i := range convs {
		convs[i].Participants = byConv[convs[i].ID]
	}
	return convs, nil
}

// AddParticipant adds userID to the conversation; adding an existing member is a no-op.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ($1, $2, NOW())
        ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID)
	return err
}

// RemoveParticipant removes userID from the conversation.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	return err
}

// RemoveUserFromAll drops every membership of userID.
func (r *ConversationRepo) RemoveUserFromAll(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_participants WHERE user_id=$1`, userID)
	return err
}

// DeleteEmptyConversations removes conversations left without participants.
func (r *ConversationRepo) DeleteEmptyConversations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversations c
        WHERE NOT EXISTS (SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id)`)
	return err
}

// TouchConversation bumps updated_at.
func (r *ConversationRepo) TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, conversationID, at)
	if err != nil {
		return err
	}
	return ensureAffected(res, ErrConversationNotFound)
}
