package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDuplicate            = errors.New("duplicate record")
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]models.User, error)
	UpdateUserRole(ctx context.Context, userID uuid.UUID, role models.Role, isStaff bool, groups []string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// ConversationRepository abstracts conversation and membership persistence.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	RemoveUserFromAll(ctx context.Context, userID uuid.UUID) error
	DeleteEmptyConversations(ctx context.Context) error
	TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error
}

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	// GetMessageForUpdate reads the persisted row and locks it until the transaction ends.
	GetMessageForUpdate(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	// ListConversationMessages returns one page of matching messages and the total match count.
	ListConversationMessages(ctx context.Context, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error)
	ListMessagesForUser(ctx context.Context, userID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error)
	CountConversationMessages(ctx context.Context, conversationID uuid.UUID) (int, error)
	LastConversationMessage(ctx context.Context, conversationID uuid.UUID) (*models.Message, error)
	ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]models.Message, error)
	ListUnreadForUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
	UpdateMessageBody(ctx context.Context, messageID uuid.UUID, body string, editorID uuid.UUID, editedAt time.Time) error
	MarkRead(ctx context.Context, messageID uuid.UUID) error
	// MessageSubtree returns messageID and the ids of every reply below it.
	MessageSubtree(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error)
	// MessagesOfUser returns messages sent or received by userID, including replies to them.
	MessagesOfUser(ctx context.Context, userID uuid.UUID) ([]models.Message, error)
	DeleteMessages(ctx context.Context, messageIDs []uuid.UUID) error
	ClearEditor(ctx context.Context, userID uuid.UUID) error
}

// HistoryRepository abstracts the append-only edit log.
type HistoryRepository interface {
	CreateHistory(ctx context.Context, entry *models.MessageHistory) error
	ListHistory(ctx context.Context, messageID uuid.UUID) ([]models.MessageHistory, error)
	DeleteHistoryForMessages(ctx context.Context, messageIDs []uuid.UUID) error
	ClearHistoryEditor(ctx context.Context, userID uuid.UUID) error
}

// NotificationRepository abstracts notification persistence.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unseenOnly bool) ([]models.Notification, error)
	MarkSeen(ctx context.Context, notificationID, userID uuid.UUID) error
	DeleteNotificationsForMessages(ctx context.Context, messageIDs []uuid.UUID) error
	DeleteNotificationsForUser(ctx context.Context, userID uuid.UUID) error
}

// Store groups the repositories and scopes them to a transaction.
type Store interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	Histories() HistoryRepository
	Notifications() NotificationRepository

	// WithinTx runs fn in a transaction; the Store passed to fn is bound to it.
	// Calling WithinTx on a transactional Store joins the running transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	// Isolated runs fn so that its failure is undone without aborting the enclosing
	// transaction. The error of fn is returned for the caller to log.
	Isolated(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
