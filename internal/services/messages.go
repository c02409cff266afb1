package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"messaging-service/internal/authz"
	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// CreateMessageInput is a message posted by the principal. Any client-supplied sender is ignored.
type CreateMessageInput struct {
	ConversationID uuid.UUID
	Body           string
	ParentID       *uuid.UUID
	ReceiverID     *uuid.UUID
}

// MessageService manages messages, their edit history and read state.
type MessageService struct {
	deps Deps
}

func NewMessageService(deps Deps) *MessageService {
	return &MessageService{deps: deps}
}

// Create stores a message from the principal and notifies its recipients.
func (s *MessageService) Create(ctx context.Context, p *authz.Principal, in CreateMessageInput) (models.Message, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.Message{}, err
	}
	ctx, span := startSpan(ctx, "message.create")
	defer span.End()

	var (
		msg          models.Message
		participants []uuid.UUID
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		conv, err := tx.Conversations().GetConversation(ctx, in.ConversationID)
		if err != nil {
			return err
		}
		if err := authz.Authorize(p, authz.ActionCreate, authz.ForNewMessage(conv)); err != nil {
			return err
		}
		participants = conv.Participants
		body := strings.TrimSpace(in.Body)
		if body == "" {
			return invalid("message_body", "this field may not be blank")
		}
		if in.ParentID != nil {
			parent, err := tx.Messages().GetMessage(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.ConversationID != conv.ID {
				return invalid("parent_message", "parent message belongs to another conversation")
			}
		}
		if in.ReceiverID != nil {
			if *in.ReceiverID == p.UserID || !conv.HasParticipant(*in.ReceiverID) {
				return invalid("receiver", "receiver must be another participant of the conversation")
			}
		}

		now := s.deps.now()
		msg = models.Message{
			ConversationID: conv.ID,
			SenderID:       p.UserID,
			ReceiverID:     in.ReceiverID,
			ParentID:       in.ParentID,
			Body:           body,
			SentAt:         now,
		}
		if err := tx.Messages().CreateMessage(ctx, &msg); err != nil {
			return err
		}
		if err := tx.Conversations().TouchConversation(ctx, conv.ID, now); err != nil {
			return err
		}

		if err := tx.Isolated(ctx, func(ctx context.Context, tx repositories.Store) error {
			return s.notify(ctx, tx, conv, msg)
		}); err != nil {
			observability.IncSideEffectFailure("notification")
			s.deps.Logger.Warn().Err(err).
				Str("event", string(events.MessageCreated)).
				Str("conversation_id", conv.ID.String()).
				Str("message_id", msg.ID.String()).
				Msg("notification side effect failed")
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	observability.IncMessage("create")
	s.deps.dispatch(ctx, events.Event{
		Kind:           events.MessageCreated,
		ConversationID: msg.ConversationID,
		Message:        &msg,
		Participants:   participants,
		ActorID:        p.UserID,
		OccurredAt:     msg.SentAt,
	})
	return msg, nil
}

// notify creates a notification for the receiver, or for every other participant
// when the message has no receiver.
func (s *MessageService) notify(ctx context.Context, tx repositories.Store, conv models.Conversation, msg models.Message) error {
	targets := []uuid.UUID{}
	if msg.ReceiverID != nil {
		targets = append(targets, *msg.ReceiverID)
	} else {
		for _, id := range conv.Participants {
			if id != msg.SenderID {
				targets = append(targets, id)
			}
		}
	}
	for _, userID := range targets {
		n := models.Notification{UserID: userID, MessageID: msg.ID, CreatedAt: msg.SentAt}
		if err := tx.Notifications().CreateNotification(ctx, &n); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a message of a conversation the principal takes part in.
func (s *MessageService) Get(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.Message{}, err
	}
	msg, _, err := s.load(ctx, s.deps.Store, p, messageID, authz.ActionView, false)
	return msg, err
}

// Update replaces the body of the principal's own message and records the previous body.
// Submitting the current body changes nothing.
func (s *MessageService) Update(ctx context.Context, p *authz.Principal, messageID uuid.UUID, body string) (models.Message, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.Message{}, err
	}
	ctx, span := startSpan(ctx, "message.update")
	defer span.End()

	var (
		updated      models.Message
		participants []uuid.UUID
		changed      bool
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		current, conv, err := s.load(ctx, tx, p, messageID, authz.ActionUpdate, true)
		if err != nil {
			return err
		}
		participants = conv.Participants
		body = strings.TrimSpace(body)
		if body == "" {
			return invalid("message_body", "this field may not be blank")
		}
		if body == current.Body {
			updated = current
			return nil
		}

		now := s.deps.now()
		editor := p.UserID
		entry := models.MessageHistory{MessageID: current.ID, OldContent: current.Body, EditedByID: &editor, EditedAt: now}
		if err := tx.Histories().CreateHistory(ctx, &entry); err != nil {
			return err
		}
		if err := tx.Messages().UpdateMessageBody(ctx, current.ID, body, editor, now); err != nil {
			return err
		}
		changed = true
		updated, err = tx.Messages().GetMessage(ctx, current.ID)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}

	if changed {
		observability.IncMessage("update")
		s.deps.dispatch(ctx, events.Event{
			Kind:           events.MessageUpdated,
			ConversationID: updated.ConversationID,
			Message:        &updated,
			Participants:   participants,
			ActorID:        p.UserID,
			OccurredAt:     s.deps.now(),
		})
	}
	return updated, nil
}

// Delete removes the principal's own message together with its replies, history and notifications.
func (s *MessageService) Delete(ctx context.Context, p *authz.Principal, messageID uuid.UUID) error {
	if err := authz.RequireAuthenticated(p); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "message.delete")
	defer span.End()

	var (
		conversationID uuid.UUID
		participants   []uuid.UUID
		removed        []uuid.UUID
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		msg, conv, err := s.load(ctx, tx, p, messageID, authz.ActionDelete, true)
		if err != nil {
			return err
		}
		conversationID = msg.ConversationID
		participants = conv.Participants

		removed, err = tx.Messages().MessageSubtree(ctx, msg.ID)
		if err != nil {
			return err
		}
		return deleteMessages(ctx, tx, removed)
	})
	if err != nil {
		return err
	}

	observability.IncMessage("delete")
	s.deps.dispatch(ctx, events.Event{
		Kind:           events.MessageDeleted,
		ConversationID: conversationID,
		MessageIDs:     removed,
		Participants:   participants,
		ActorID:        p.UserID,
		OccurredAt:     s.deps.now(),
	})
	return nil
}

func deleteMessages(ctx context.Context, tx repositories.Store, ids []uuid.UUID) error {
	if err := tx.Notifications().DeleteNotificationsForMessages(ctx, ids); err != nil {
		return err
	}
	if err := tx.Histories().DeleteHistoryForMessages(ctx, ids); err != nil {
		return err
	}
	return tx.Messages().DeleteMessages(ctx, ids)
}

// MarkRead flags a message as read for its receiver. Marking a read message again is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, p *authz.Principal, messageID uuid.UUID) (models.Message, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		var err error
		msg, _, err = s.load(ctx, tx, p, messageID, authz.ActionMarkRead, true)
		if err != nil || msg.IsRead {
			return err
		}
		if err := tx.Messages().MarkRead(ctx, msg.ID); err != nil {
			return err
		}
		msg.IsRead = true
		return nil
	})
	return msg, err
}

// List returns one page of a conversation's messages in send order and the total match count.
func (s *MessageService) List(ctx context.Context, p *authz.Principal, conversationID uuid.UUID, filter models.MessageFilter) ([]models.Message, int, error) {
	if _, err := s.viewConversation(ctx, p, conversationID); err != nil {
		return nil, 0, err
	}
	return s.deps.Store.Messages().ListConversationMessages(ctx, conversationID, filter)
}

// ListForUser returns messages across every conversation the principal takes part in.
func (s *MessageService) ListForUser(ctx context.Context, p *authz.Principal, filter models.MessageFilter) ([]models.Message, int, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, 0, err
	}
	return s.deps.Store.Messages().ListMessagesForUser(ctx, p.UserID, filter)
}

// Thread returns the top-level messages of a conversation with their direct replies.
func (s *MessageService) Thread(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) ([]models.MessageThread, error) {
	if _, err := s.viewConversation(ctx, p, conversationID); err != nil {
		return nil, err
	}
	all, _, err := s.deps.Store.Messages().ListConversationMessages(ctx, conversationID, models.MessageFilter{})
	if err != nil {
		return nil, err
	}

	threads := []models.MessageThread{}
	index := map[uuid.UUID]int{}
	for _, m := range all {
		if m.IsReply() {
			continue
		}
		index[m.ID] = len(threads)
		threads = append(threads, models.MessageThread{Message: m, Replies: []models.Message{}})
	}
	parentIDs := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		parentIDs = append(parentIDs, t.ID)
	}
	replies, err := s.deps.Store.Messages().ListReplies(ctx, parentIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range replies {
		if i, ok := index[*r.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, r)
		}
	}
	return threads, nil
}

// Unread returns unread messages addressed to the principal.
func (s *MessageService) Unread(ctx context.Context, p *authz.Principal) ([]models.Message, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	return s.deps.Store.Messages().ListUnreadForUser(ctx, p.UserID)
}

// History returns the recorded edits of a message, oldest first.
func (s *MessageService) History(ctx context.Context, p *authz.Principal, messageID uuid.UUID) ([]models.MessageHistory, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if _, _, err := s.load(ctx, s.deps.Store, p, messageID, authz.ActionView, false); err != nil {
		return nil, err
	}
	return s.deps.Store.Histories().ListHistory(ctx, messageID)
}

func (s *MessageService) viewConversation(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) (models.Conversation, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.Conversation{}, err
	}
	conv, err := s.deps.Store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, authz.Authorize(p, authz.ActionView, authz.ForConversation(conv))
}

// load reads a message with its conversation and authorizes action on it.
func (s *MessageService) load(ctx context.Context, store repositories.Store, p *authz.Principal, messageID uuid.UUID, action authz.Action, forUpdate bool) (models.Message, models.Conversation, error) {
	var (
		msg models.Message
		err error
	)
	if forUpdate {
		msg, err = store.Messages().GetMessageForUpdate(ctx, messageID)
	} else {
		msg, err = store.Messages().GetMessage(ctx, messageID)
	}
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	conv, err := store.Conversations().GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if err := authz.Authorize(p, action, authz.ForMessage(msg, conv)); err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	return msg, conv, nil
}
