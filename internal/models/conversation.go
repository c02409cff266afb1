package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a message thread shared by all of its participants.
type Conversation struct {
	ID           uuid.UUID   `db:"id" json:"conversation_id"`
	Participants []uuid.UUID `db:"-" json:"participants"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the list view of a conversation for one user.
type ConversationSummary struct {
	Conversation
	MessageCount int      `json:"message_count"`
	LastMessage  *Message `json:"last_message,omitempty"`
}
