package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"messaging-service/internal/authz"
	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/repositories/memory"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Name() string { return "test" }

func (l *eventLog) Handle(_ context.Context, evt events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) ofKind(kind events.Kind) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store         repositories.Store
	log           *eventLog
	conversations *ConversationService
	messages      *MessageService
	users         *UserService
	notifications *NotificationService
}

func newFixtureWithStore(t *testing.T, store repositories.Store) *fixture {
	t.Helper()
	log := &eventLog{}
	dispatcher := events.NewDispatcher(zerolog.Nop(), false)
	dispatcher.Subscribe(log)

	clock := &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	deps := Deps{
		Store:        store,
		Events:       dispatcher,
		Logger:       zerolog.Nop(),
		Now:          clock.Now,
		PasswordCost: bcrypt.MinCost,
	}
	return &fixture{
		store:         store,
		log:           log,
		conversations: NewConversationService(deps),
		messages:      NewMessageService(deps),
		users:         NewUserService(deps),
		notifications: NewNotificationService(deps),
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.NewStore())
}

func (f *fixture) user(t *testing.T, name string) *authz.Principal {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com", Role: models.RoleGuest, IsActive: true}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), &u))
	return authz.PrincipalFromUser(u)
}

func (f *fixture) conversation(t *testing.T, creator *authz.Principal, others ...*authz.Principal) models.Conversation {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(others))
	for _, o := range others {
		ids = append(ids, o.UserID)
	}
	conv, err := f.conversations.Create(context.Background(), creator, ids)
	require.NoError(t, err)
	return conv.Conversation
}

func (f *fixture) send(t *testing.T, from *authz.Principal, conv models.Conversation, body string) models.Message {
	t.Helper()
	msg, err := f.messages.Create(context.Background(), from, CreateMessageInput{ConversationID: conv.ID, Body: body})
	require.NoError(t, err)
	return msg
}

var errBrokenNotifications = errors.New("notifications table unavailable")

// brokenNotificationsStore fails every notification write.
type brokenNotificationsStore struct {
	repositories.Store
}

func (s brokenNotificationsStore) Notifications() repositories.NotificationRepository {
	return brokenNotifications{s.Store.Notifications()}
}

func (s brokenNotificationsStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		return fn(ctx, brokenNotificationsStore{tx})
	})
}

func (s brokenNotificationsStore) Isolated(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	return s.Store.Isolated(ctx, func(ctx context.Context, tx repositories.Store) error {
		return fn(ctx, brokenNotificationsStore{tx})
	})
}

type brokenNotifications struct {
	repositories.NotificationRepository
}

func (brokenNotifications) CreateNotification(context.Context, *models.Notification) error {
	return errBrokenNotifications
}
