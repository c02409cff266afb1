// Package memory is an in-process Store used for local development and tests.
// Transactions are serialized and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type tables struct {
	users         map[uuid.UUID]models.User
	conversations map[uuid.UUID]models.Conversation
	messages      map[uuid.UUID]models.Message
	history       map[uuid.UUID]models.MessageHistory
	notifications map[uuid.UUID]models.Notification
}

func newTables() *tables {
	return &tables{
		users:         map[uuid.UUID]models.User{},
		conversations: map[uuid.UUID]models.Conversation{},
		messages:      map[uuid.UUID]models.Message{},
		history:       map[uuid.UUID]models.MessageHistory{},
		notifications: map[uuid.UUID]models.Notification{},
	}
}

func (t *tables) clone() *tables {
	out := newTables()
	for k, v := range t.users {
		v.Groups = append(v.Groups[:0:0], v.Groups...)
		out.users[k] = v
	}
	for k, v := range t.conversations {
		v.Participants = append([]uuid.UUID(nil), v.Participants...)
		out.conversations[k] = v
	}
	for k, v := range t.messages {
		out.messages[k] = v
	}
	for k, v := range t.history {
		out.history[k] = v
	}
	for k, v := range t.notifications {
		out.notifications[k] = v
	}
	return out
}

type state struct {
	mu   sync.Mutex
	data *tables
}

// Store keeps every table in memory.
type Store struct {
	st   *state
	inTx bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{st: &state{data: newTables()}}
}

func (s *Store) Users() repositories.UserRepository                 { return s }
func (s *Store) Conversations() repositories.ConversationRepository { return s }
func (s *Store) Messages() repositories.MessageRepository           { return s }
func (s *Store) Histories() repositories.HistoryRepository          { return s }
func (s *Store) Notifications() repositories.NotificationRepository { return s }

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

// WithinTx serializes fn against every other operation and undoes its writes on error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.runRestoring(ctx, fn)
}

// Isolated undoes the writes of fn when it fails without touching earlier writes.
func (s *Store) Isolated(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	if !s.inTx {
		return s.WithinTx(ctx, fn)
	}
	return s.runRestoring(ctx, fn)
}

func (s *Store) runRestoring(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) (err error) {
	snapshot := s.st.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st.data = snapshot
			panic(p)
		}
		if err != nil {
			s.st.data = snapshot
		}
	}()
	return fn(ctx, &Store{st: s.st, inTx: true})
}

// Users

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	defer s.lock()()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	for _, u := range s.st.data.users {
		if u.Username == user.Username || (user.Email != "" && u.Email == user.Email) {
			return repositories.ErrDuplicate
		}
	}
	stored := *user
	stored.Groups = append(stored.Groups[:0:0], user.Groups...)
	s.st.data.users[user.ID] = stored
	return nil
}

func (s *Store) GetUser(_ context.Context, userID uuid.UUID) (models.User, error) {
	defer s.lock()()
	u, ok := s.st.data.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	defer s.lock()()
	for _, u := range s.st.data.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrUserNotFound
}

func (s *Store) GetUsers(_ context.Context, userIDs []uuid.UUID) ([]models.User, error) {
	defer s.lock()()
	out := []models.User{}
	seen := map[uuid.UUID]bool{}
	for _, id := range userIDs {
		if u, ok := s.st.data.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListUsers(_ context.Context, activeOnly bool) ([]models.User, error) {
	defer s.lock()()
	out := []models.User{}
	for _, u := range s.st.data.users {
		if activeOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserRole(_ context.Context, userID uuid.UUID, role models.Role, isStaff bool, groups []string) error {
	defer s.lock()()
	u, ok := s.st.data.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Role = role
	u.IsStaff = isStaff
	u.Groups = append(u.Groups[:0:0], groups...)
	s.st.data.users[userID] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID uuid.UUID) error {
	defer s.lock()()
	if _, ok := s.st.data.users[userID]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(s.st.data.users, userID)
	return nil
}

// Conversations

func (s *Store) CreateConversation(_ context.Context, conv *models.Conversation) error {
	defer s.lock()()
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	stored := *conv
	stored.Participants = append([]uuid.UUID(nil), conv.Participants...)
	s.st.data.conversations[conv.ID] = stored
	return nil
}

func (s *Store) GetConversation(_ context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	defer s.lock()()
	c, ok := s.st.data.conversations[conversationID]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	c.Participants = append([]uuid.UUID(nil), c.Participants...)
	return c, nil
}

func (s *Store) ListConversationsForUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	defer s.lock()()
	out := []models.Conversation{}
	for _, c := range s.st.data.conversations {
		if c.HasParticipant(userID) {
			c.Participants = append([]uuid.UUID(nil), c.Participants...)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) AddParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	defer s.lock()()
	c, ok := s.st.data.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	if c.HasParticipant(userID) {
		return nil
	}
	c.Participants = append(append([]uuid.UUID(nil), c.Participants...), userID)
	s.st.data.conversations[conversationID] = c
	return nil
}

func (s *Store) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	defer s.lock()()
	c, ok := s.st.data.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	c.Participants = without(c.Participants, userID)
	s.st.data.conversations[conversationID] = c
	return nil
}

func (s *Store) RemoveUserFromAll(_ context.Context, userID uuid.UUID) error {
	defer s.lock()()
	for id, c := range s.st.data.conversations {
		c.Participants = without(c.Participants, userID)
		s.st.data.conversations[id] = c
	}
	return nil
}

func (s *Store) DeleteEmptyConversations(_ context.Context) error {
	defer s.lock()()
	for id, c := range s.st.data.conversations {
		if len(c.Participants) > 0 {
			continue
		}
		delete(s.st.data.conversations, id)
		var orphaned []uuid.UUID
		for mid, m := range s.st.data.messages {
			if m.ConversationID == id {
				orphaned = append(orphaned, mid)
			}
		}
		s.deleteMessagesLocked(orphaned)
	}
	return nil
}

func (s *Store) TouchConversation(_ context.Context, conversationID uuid.UUID, at time.Time) error {
	defer s.lock()()
	c, ok := s.st.data.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	c.UpdatedAt = at
	s.st.data.conversations[conversationID] = c
	return nil
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

var (
	_ repositories.Store                  = (*Store)(nil)
	_ repositories.UserRepository         = (*Store)(nil)
	_ repositories.ConversationRepository = (*Store)(nil)
	_ repositories.MessageRepository      = (*Store)(nil)
	_ repositories.HistoryRepository      = (*Store)(nil)
	_ repositories.NotificationRepository = (*Store)(nil)
)
