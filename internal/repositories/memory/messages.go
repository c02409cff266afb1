package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	defer s.lock()()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	s.st.data.messages[msg.ID] = *msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, messageID uuid.UUID) (models.Message, error) {
	defer s.lock()()
	m, ok := s.st.data.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return m, nil
}

func (s *Store) GetMessageForUpdate(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	return s.GetMessage(ctx, messageID)
}

func (s *Store) ListConversationMessages(_ context.Context, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	defer s.lock()()
	msgs, total := s.page(func(m models.Message) bool { return m.ConversationID == conversationID }, filter)
	return msgs, total, nil
}

func (s *Store) ListMessagesForUser(_ context.Context, userID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	defer s.lock()()
	msgs, total := s.page(func(m models.Message) bool {
		c, ok := s.st.data.conversations[m.ConversationID]
		return ok && c.HasParticipant(userID)
	}, filter)
	return msgs, total, nil
}

func (s *Store) page(match func(models.Message) bool, filter models.MessageFilter) ([]models.Message, int) {
	all := s.collect(func(m models.Message) bool {
		if !match(m) {
			return false
		}
		if filter.SenderID != nil && m.SenderID != *filter.SenderID {
			return false
		}
		if filter.Since != nil && m.SentAt.Before(*filter.Since) {
			return false
		}
		if filter.Until != nil && m.SentAt.After(*filter.Until) {
			return false
		}
		return true
	})
	total := len(all)
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return []models.Message{}, total
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total
}

// collect returns matching messages in send order.
func (s *Store) collect(match func(models.Message) bool) []models.Message {
	out := []models.Message{}
	for _, m := range s.st.data.messages {
		if match(m) {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID.String() < msgs[j].ID.String()
	})
}

func (s *Store) CountConversationMessages(_ context.Context, conversationID uuid.UUID) (int, error) {
	defer s.lock()()
	count := 0
	for _, m := range s.st.data.messages {
		if m.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (s *Store) LastConversationMessage(_ context.Context, conversationID uuid.UUID) (*models.Message, error) {
	defer s.lock()()
	msgs := s.collect(func(m models.Message) bool { return m.ConversationID == conversationID })
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (s *Store) ListReplies(_ context.Context, parentIDs []uuid.UUID) ([]models.Message, error) {
	defer s.lock()()
	parents := map[uuid.UUID]bool{}
	for _, id := range parentIDs {
		parents[id] = true
	}
	return s.collect(func(m models.Message) bool { return m.ParentID != nil && parents[*m.ParentID] }), nil
}

func (s *Store) ListUnreadForUser(_ context.Context, userID uuid.UUID) ([]models.Message, error) {
	defer s.lock()()
	return s.collect(func(m models.Message) bool {
		return !m.IsRead && m.ReceiverID != nil && *m.ReceiverID == userID
	}), nil
}

func (s *Store) UpdateMessageBody(_ context.Context, messageID uuid.UUID, body string, editorID uuid.UUID, editedAt time.Time) error {
	defer s.lock()()
	m, ok := s.st.data.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	m.Body = body
	m.EditedByID = &editorID
	m.EditedAt = &editedAt
	s.st.data.messages[messageID] = m
	return nil
}

func (s *Store) MarkRead(_ context.Context, messageID uuid.UUID) error {
	defer s.lock()()
	m, ok := s.st.data.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	m.IsRead = true
	s.st.data.messages[messageID] = m
	return nil
}

func (s *Store) MessageSubtree(_ context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	defer s.lock()()
	if _, ok := s.st.data.messages[messageID]; !ok {
		return nil, repositories.ErrMessageNotFound
	}
	return s.descendants([]uuid.UUID{messageID}), nil
}

func (s *Store) MessagesOfUser(_ context.Context, userID uuid.UUID) ([]models.Message, error) {
	defer s.lock()()
	var roots []uuid.UUID
	for id, m := range s.st.data.messages {
		if m.SenderID == userID || (m.ReceiverID != nil && *m.ReceiverID == userID) {
			roots = append(roots, id)
		}
	}
	owned := map[uuid.UUID]bool{}
	for _, id := range s.descendants(roots) {
		owned[id] = true
	}
	return s.collect(func(m models.Message) bool { return owned[m.ID] }), nil
}

// descendants returns roots plus every reply reachable from them.
func (s *Store) descendants(roots []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	queue := append([]uuid.UUID(nil), roots...)
	var out []uuid.UUID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		for childID, m := range s.st.data.messages {
			if m.ParentID != nil && *m.ParentID == id && !seen[childID] {
				queue = append(queue, childID)
			}
		}
	}
	return out
}

func (s *Store) DeleteMessages(_ context.Context, messageIDs []uuid.UUID) error {
	defer s.lock()()
	s.deleteMessagesLocked(messageIDs)
	return nil
}

// deleteMessagesLocked removes messages with their replies, edit history and notifications.
func (s *Store) deleteMessagesLocked(messageIDs []uuid.UUID) {
	doomed := map[uuid.UUID]bool{}
	for _, id := range s.descendants(messageIDs) {
		doomed[id] = true
		delete(s.st.data.messages, id)
	}
	for id, h := range s.st.data.history {
		if doomed[h.MessageID] {
			delete(s.st.data.history, id)
		}
	}
	for id, n := range s.st.data.notifications {
		if doomed[n.MessageID] {
			delete(s.st.data.notifications, id)
		}
	}
}

func (s *Store) ClearEditor(_ context.Context, userID uuid.UUID) error {
	defer s.lock()()
	for id, m := range s.st.data.messages {
		if m.EditedByID != nil && *m.EditedByID == userID {
			m.EditedByID = nil
			s.st.data.messages[id] = m
		}
	}
	return nil
}

// History

func (s *Store) CreateHistory(_ context.Context, entry *models.MessageHistory) error {
	defer s.lock()()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.EditedAt.IsZero() {
		entry.EditedAt = time.Now().UTC()
	}
	if _, ok := s.st.data.messages[entry.MessageID]; !ok {
		return repositories.ErrMessageNotFound
	}
	s.st.data.history[entry.ID] = *entry
	return nil
}

func (s *Store) ListHistory(_ context.Context, messageID uuid.UUID) ([]models.MessageHistory, error) {
	defer s.lock()()
	out := []models.MessageHistory{}
	for _, h := range s.st.data.history {
		if h.MessageID == messageID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EditedAt.Equal(out[j].EditedAt) {
			return out[i].EditedAt.Before(out[j].EditedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DeleteHistoryForMessages(_ context.Context, messageIDs []uuid.UUID) error {
	defer s.lock()()
	doomed := idSet(messageIDs)
	for id, h := range s.st.data.history {
		if doomed[h.MessageID] {
			delete(s.st.data.history, id)
		}
	}
	return nil
}

func (s *Store) ClearHistoryEditor(_ context.Context, userID uuid.UUID) error {
	defer s.lock()()
	for id, h := range s.st.data.history {
		if h.EditedByID != nil && *h.EditedByID == userID {
			h.EditedByID = nil
			s.st.data.history[id] = h
		}
	}
	return nil
}

// Notifications

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	defer s.lock()()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.st.data.users[n.UserID]; !ok {
		return repositories.ErrUserNotFound
	}
	if _, ok := s.st.data.messages[n.MessageID]; !ok {
		return repositories.ErrMessageNotFound
	}
	s.st.data.notifications[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID uuid.UUID, unseenOnly bool) ([]models.Notification, error) {
	defer s.lock()()
	out := []models.Notification{}
	for _, n := range s.st.data.notifications {
		if n.UserID != userID || (unseenOnly && n.IsSeen) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) MarkSeen(_ context.Context, notificationID, userID uuid.UUID) error {
	defer s.lock()()
	n, ok := s.st.data.notifications[notificationID]
	if !ok || n.UserID != userID {
		return repositories.ErrNotificationNotFound
	}
	n.IsSeen = true
	s.st.data.notifications[notificationID] = n
	return nil
}

func (s *Store) DeleteNotificationsForMessages(_ context.Context, messageIDs []uuid.UUID) error {
	defer s.lock()()
	doomed := idSet(messageIDs)
	for id, n := range s.st.data.notifications {
		if doomed[n.MessageID] {
			delete(s.st.data.notifications, id)
		}
	}
	return nil
}

func (s *Store) DeleteNotificationsForUser(_ context.Context, userID uuid.UUID) error {
	defer s.lock()()
	for id, n := range s.st.data.notifications {
		if n.UserID == userID {
			delete(s.st.data.notifications, id)
		}
	}
	return nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
