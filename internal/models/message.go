package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single entry in a conversation, optionally replying to another message.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"message_id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation"`
	SenderID       uuid.UUID  `db:"sender_id" json:"sender"`
	ReceiverID     *uuid.UUID `db:"receiver_id" json:"receiver,omitempty"`
	ParentID       *uuid.UUID `db:"parent_id" json:"parent_message,omitempty"`
	Body           string     `db:"body" json:"message_body"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	EditedByID     *uuid.UUID `db:"edited_by" json:"edited_by,omitempty"`
	SentAt         time.Time  `db:"sent_at" json:"sent_at"`
	EditedAt       *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}

// IsReply reports whether the message answers another message.
func (m Message) IsReply() bool {
	return m.ParentID != nil
}

// MessageThread is a top-level message together with its direct replies.
type MessageThread struct {
	Message
	Replies []Message `json:"replies"`
}

// MessageFilter narrows message listings.
type MessageFilter struct {
	SenderID *uuid.UUID
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// MessageHistory records the body a message had before an edit.
type MessageHistory struct {
	ID         uuid.UUID  `db:"id" json:"history_id"`
	MessageID  uuid.UUID  `db:"message_id" json:"message"`
	OldContent string     `db:"old_content" json:"old_content"`
	EditedByID *uuid.UUID `db:"edited_by" json:"edited_by,omitempty"`
	EditedAt   time.Time  `db:"edited_at" json:"edited_at"`
}

// Notification tells a user about a message addressed to them.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"notification_id"`
	UserID    uuid.UUID `db:"user_id" json:"user"`
	MessageID uuid.UUID `db:"message_id" json:"message"`
	IsSeen    bool      `db:"is_seen" json:"is_seen"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ConversationEvent is broadcast to websocket clients of a conversation.
type ConversationEvent struct {
	Type           string     `json:"type"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Message        *Message   `json:"message,omitempty"`
	MessageID      *uuid.UUID `json:"message_id,omitempty"`
}
