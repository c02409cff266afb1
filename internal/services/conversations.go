package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/authz"
	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// ConversationService manages conversations and their membership.
type ConversationService struct {
	deps Deps
}

func NewConversationService(deps Deps) *ConversationService {
	return &ConversationService{deps: deps}
}

// Create starts a conversation between the principal and participantIDs.
func (s *ConversationService) Create(ctx context.Context, p *authz.Principal, participantIDs []uuid.UUID) (models.ConversationSummary, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.ConversationTarget{}); err != nil {
		return models.ConversationSummary{}, err
	}
	ctx, span := startSpan(ctx, "conversation.create")
	defer span.End()

	ids := dedupIDs(append([]uuid.UUID{p.UserID}, participantIDs...))
	if len(ids) < 2 {
		return models.ConversationSummary{}, invalid("participants", "a conversation needs at least 2 participants")
	}

	now := s.deps.now()
	conv := models.Conversation{Participants: ids, CreatedAt: now, UpdatedAt: now}
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		users, err := tx.Users().GetUsers(ctx, ids)
		if err != nil {
			return err
		}
		if missing := missingUser(ids, users); missing != uuid.Nil {
			return fmt.Errorf("%w: %s", repositories.ErrUserNotFound, missing)
		}
		return tx.Conversations().CreateConversation(ctx, &conv)
	})
	if err != nil {
		return models.ConversationSummary{}, err
	}
	s.deps.Logger.Info().Str("conversation_id", conv.ID.String()).Int("participants", len(ids)).Msg("conversation created")
	return models.ConversationSummary{Conversation: conv}, nil
}

// Get returns a conversation the principal takes part in.
func (s *ConversationService) Get(ctx context.Context, p *authz.Principal, conversationID uuid.UUID) (models.ConversationSummary, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.ConversationSummary{}, err
	}
	conv, err := s.deps.Store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	if err := authz.Authorize(p, authz.ActionView, authz.ForConversation(conv)); err != nil {
		return models.ConversationSummary{}, err
	}
	return s.summarize(ctx, s.deps.Store, conv)
}

// ListFor returns the principal's conversations, most recently updated first.
func (s *ConversationService) ListFor(ctx context.Context, p *authz.Principal) ([]models.ConversationSummary, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	convs, err := s.deps.Store.Conversations().ListConversationsForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := s.summarize(ctx, s.deps.Store, conv)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// AddParticipant adds userID to a conversation the principal takes part in.
func (s *ConversationService) AddParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error) {
	return s.changeMembership(ctx, p, conversationID, userID, func(ctx context.Context, tx repositories.Store) error {
		return tx.Conversations().AddParticipant(ctx, conversationID, userID)
	})
}

// RemoveParticipant removes userID from a conversation the principal takes part in.
// A conversation left without participants is deleted.
func (s *ConversationService) RemoveParticipant(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID) (models.ConversationSummary, error) {
	summary, err := s.changeMembership(ctx, p, conversationID, userID, func(ctx context.Context, tx repositories.Store) error {
		if err := tx.Conversations().RemoveParticipant(ctx, conversationID, userID); err != nil {
			return err
		}
		return tx.Conversations().DeleteEmptyConversations(ctx)
	})
	if err != nil {
		return summary, err
	}
	s.deps.dispatch(ctx, departureEvents(conversationID, userID, summary.Participants, p.UserID, s.deps.now())...)
	return summary, nil
}

// departureEvents announces that userID left a conversation whose remaining members are
// participants. An empty conversation is reported as deleted.
func departureEvents(conversationID, userID uuid.UUID, participants []uuid.UUID, actorID uuid.UUID, at time.Time) []events.Event {
	remaining := append([]uuid.UUID{}, participants...)
	evts := []events.Event{{
		Kind:           events.ParticipantRemoved,
		ConversationID: conversationID,
		UserID:         &userID,
		Participants:   remaining,
		ActorID:        actorID,
		OccurredAt:     at,
	}}
	if len(remaining) == 0 {
		evts = append(evts, events.Event{
			Kind:           events.ConversationDeleted,
			ConversationID: conversationID,
			Participants:   remaining,
			ActorID:        actorID,
			OccurredAt:     at,
		})
	}
	return evts
}

func (s *ConversationService) changeMembership(ctx context.Context, p *authz.Principal, conversationID, userID uuid.UUID, change func(context.Context, repositories.Store) error) (models.ConversationSummary, error) {
	if err := authz.RequireAuthenticated(p); err != nil {
		return models.ConversationSummary{}, err
	}
	ctx, span := startSpan(ctx, "conversation.membership")
	defer span.End()

	var summary models.ConversationSummary
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		conv, err := tx.Conversations().GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		if err := authz.Authorize(p, authz.ActionUpdate, authz.ForConversation(conv)); err != nil {
			return err
		}
		if _, err := tx.Users().GetUser(ctx, userID); err != nil {
			return err
		}
		if err := change(ctx, tx); err != nil {
			return err
		}

		conv, err = tx.Conversations().GetConversation(ctx, conversationID)
		if errors.Is(err, repositories.ErrConversationNotFound) {
			// the last participant left
			summary = models.ConversationSummary{Conversation: models.Conversation{ID: conversationID, Participants: []uuid.UUID{}}}
			return nil
		}
		if err != nil {
			return err
		}
		now := s.deps.now()
		if err := tx.Conversations().TouchConversation(ctx, conversationID, now); err != nil {
			return err
		}
		conv.UpdatedAt = now
		summary, err = s.summarize(ctx, tx, conv)
		return err
	})
	return summary, err
}

func (s *ConversationService) summarize(ctx context.Context, store repositories.Store, conv models.Conversation) (models.ConversationSummary, error) {
	count, err := store.Messages().CountConversationMessages(ctx, conv.ID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	last, err := store.Messages().LastConversationMessage(ctx, conv.ID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return models.ConversationSummary{Conversation: conv, MessageCount: count, LastMessage: last}, nil
}

func missingUser(ids []uuid.UUID, users []models.User) uuid.UUID {
	found := make(map[uuid.UUID]bool, len(users))
	for _, u := range users {
		found[u.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return id
		}
	}
	return uuid.Nil
}
