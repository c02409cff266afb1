package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/auth"
	"messaging-service/internal/authz"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

type UserServiceMock struct {
	mock.Mock
}

func (m *UserServiceMock) Register(ctx context.Context, in services.RegisterInput) (models.User, error) {
	args := m.Called(ctx, in)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserServiceMock) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	args := m.Called(ctx, username, password)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserServiceMock) Principal(ctx context.Context, userID uuid.UUID) (*authz.Principal, error) {
	args := m.Called(ctx, userID)
	var p *authz.Principal
	if val := args.Get(0); val != nil {
		p = val.(*authz.Principal)
	}
	return p, args.Error(1)
}

func (m *UserServiceMock) List(ctx context.Context, p *authz.Principal) ([]models.User, error) {
	args := m.Called(ctx, p)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserServiceMock) ListAll(ctx context.Context, p *authz.Principal) ([]models.User, error) {
	args := m.Called(ctx, p)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserServiceMock) Get(ctx context.Context, p *authz.Principal, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, p, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserServiceMock) Delete(ctx context.Context, p *authz.Principal, userID uuid.UUID) error {
	args := m.Called(ctx, p, userID)
	return args.Error(0)
}

func (m *UserServiceMock) SetRole(ctx context.Context, p *authz.Principal, userID uuid.UUID, update services.RoleUpdate) (models.User, error) {
	args := m.Called(ctx, p, userID, update)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) summary(args mock.Arguments) (models.ConversationSummary, error) {
	var conv models.ConversationSummary
	if val := args.Get(0); val != nil {
		conv = val.(models.ConversationSummary)
	}
	return conv, args.Error(1)
}

func (m *ConversationServiceMock) Create(ctx context.Context, p *authz.Principal, participantIDs []uuid.UUID) (models.ConversationSummary, error) {
	return m.summary(m.Called(ctx, p, participantIDs))
}

func (m *ConversationServiceMock) Get(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) (models.ConversationSummary, error) {
	return m.summary(m.Called(ctx, p, conversationID))
}

func (m *ConversationServiceMock) ListFor(ctx context.Context, p *authz.Principal) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, p)
	var convs []models.ConversationSummary
	if val := args.Get(0); val != nil {
		convs = val.([]models.ConversationSummary)
	}
	return convs, args.Error(1)
}

func (m *ConversationServiceMock) AddParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error) {
	return m.summary(m.Called(ctx, p, conversationID, userID))
}

func (m *ConversationServiceMock) RemoveParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error) {
	return m.summary(m.Called(ctx, p, conversationID, userID))
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) message(args mock.Arguments) (models.Message, error) {
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) page(args mock.Arguments) ([]models.Message, int, error) {
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Int(1), args.Error(2)
}

func (m *MessageServiceMock) Create(ctx context.Context, p *authz.Principal, in services.CreateMessageInput) (models.Message, error) {
	return m.message(m.Called(ctx, p, in))
}

func (m *MessageServiceMock) Get(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error) {
	return m.message(m.Called(ctx, p, messageID))
}

func (m *MessageServiceMock) Update(ctx context.Context, p *authz.Principal, messageID uuid.UUID, body string) (models.Message, error) {
	return m.message(m.Called(ctx, p, messageID, body))
}

func (m *MessageServiceMock) Delete(ctx context.Context, p *authz.Principal, messageID uuid.UUID) error {
	args := m.Called(ctx, p, messageID)
	return args.Error(0)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error) {
	return m.message(m.Called(ctx, p, messageID))
}

func (m *MessageServiceMock) List(ctx context.Context, p *authz.Principal, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	return m.page(m.Called(ctx, p, conversationID, filter))
}

func (m *MessageServiceMock) ListForUser(ctx context.Context, p *authz.Principal, filter models.MessageFilter) ([]models.Message, int, error) {
	return m.page(m.Called(ctx, p, filter))
}

func (m *MessageServiceMock) Thread(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) ([]models.MessageThread, error) {
	args := m.Called(ctx, p, conversationID)
	var threads []models.MessageThread
	if val := args.Get(0); val != nil {
		threads = val.([]models.MessageThread)
	}
	return threads, args.Error(1)
}

func (m *MessageServiceMock) Unread(ctx context.Context, p *authz.Principal) ([]models.Message, error) {
	args := m.Called(ctx, p)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) History(ctx context.Context, p *authz.Principal, messageID uuid.UUID) ([]models.MessageHistory, error) {
	args := m.Called(ctx, p, messageID)
	var history []models.MessageHistory
	if val := args.Get(0); val != nil {
		history = val.([]models.MessageHistory)
	}
	return history, args.Error(1)
}

type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) List(ctx context.Context, p *authz.Principal, unseenOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, p, unseenOnly)
	var notifications []models.Notification
	if val := args.Get(0); val != nil {
		notifications = val.([]models.Notification)
	}
	return notifications, args.Error(1)
}

func (m *NotificationServiceMock) MarkSeen(ctx context.Context, p *authz.Principal, notificationID uuid.UUID) error {
	args := m.Called(ctx, p, notificationID)
	return args.Error(0)
}

type TokenIssuerMock struct {
	mock.Mock
}

func (m *TokenIssuerMock) Issue(userID uuid.UUID) (auth.TokenPair, error) {
	args := m.Called(userID)
	var pair auth.TokenPair
	if val := args.Get(0); val != nil {
		pair = val.(auth.TokenPair)
	}
	return pair, args.Error(1)
}

func (m *TokenIssuerMock) Refresh(refreshToken string) (uuid.UUID, auth.TokenPair, error) {
	args := m.Called(refreshToken)
	var pair auth.TokenPair
	if val := args.Get(1); val != nil {
		pair = val.(auth.TokenPair)
	}
	return args.Get(0).(uuid.UUID), pair, args.Error(2)
}
