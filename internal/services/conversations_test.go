package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/authz"
	"messaging-service/internal/events"
	"messaging-service/internal/repositories"
)

func TestCreateConversationParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	conv, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob.UserID, bob.UserID, alice.UserID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.UserID, bob.UserID}, conv.Participants)

	_, err = f.conversations.Create(ctx, alice, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "participants")

	_, err = f.conversations.Create(ctx, alice, []uuid.UUID{alice.UserID})
	require.ErrorAs(t, err, &verr)
}

func TestCreateConversationUnknownParticipant(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.conversations.Create(context.Background(), alice, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestCreateConversationUnauthenticated(t *testing.T) {
	f := newFixture(t)
	bob := f.user(t, "bob")

	_, err := f.conversations.Create(context.Background(), nil, []uuid.UUID{bob.UserID})
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestGetConversationNonParticipantIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	conv := f.conversation(t, alice, bob)

	_, err := f.conversations.Get(ctx, carol, conv.ID)
	assert.ErrorIs(t, err, authz.ErrNotParticipant)

	_, err = f.conversations.Get(ctx, carol, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)

	_, err = f.conversations.Get(ctx, nil, conv.ID)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestGetConversationSummary(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.conversation(t, alice, bob)
	f.send(t, alice, conv, "first")
	last := f.send(t, bob, conv, "second")

	summary, err := f.conversations.Get(context.Background(), bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.MessageCount)
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, last.ID, summary.LastMessage.ID)
}

func TestListForOrdersByLastActivity(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	first := f.conversation(t, alice, bob)
	second := f.conversation(t, alice, carol)
	f.conversation(t, bob, carol)

	list, err := f.conversations.ListFor(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	f.send(t, bob, first, "bump")
	list, err = f.conversations.ListFor(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
}

func TestAddAndRemoveParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol, dave := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol"), f.user(t, "dave")
	conv := f.conversation(t, alice, bob)

	_, err := f.conversations.AddParticipant(ctx, carol, conv.ID, carol.UserID)
	assert.ErrorIs(t, err, authz.ErrNotParticipant)

	_, err = f.conversations.AddParticipant(ctx, alice, conv.ID, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)

	summary, err := f.conversations.AddParticipant(ctx, alice, conv.ID, carol.UserID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice.UserID, bob.UserID, carol.UserID}, summary.Participants)

	summary, err = f.conversations.AddParticipant(ctx, bob, conv.ID, carol.UserID)
	require.NoError(t, err)
	assert.Len(t, summary.Participants, 3)

	_, err = f.conversations.RemoveParticipant(ctx, dave, conv.ID, bob.UserID)
	assert.ErrorIs(t, err, authz.ErrNotParticipant)

	summary, err = f.conversations.RemoveParticipant(ctx, carol, conv.ID, bob.UserID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice.UserID, carol.UserID}, summary.Participants)

	_, err = f.conversations.Get(ctx, bob, conv.ID)
	assert.ErrorIs(t, err, authz.ErrNotParticipant)
}

func TestRemoveParticipantAnnouncesDeparture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	conv := f.conversation(t, alice, bob, carol)

	_, err := f.conversations.RemoveParticipant(ctx, alice, conv.ID, carol.UserID)
	require.NoError(t, err)

	removed := f.log.ofKind(events.ParticipantRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, conv.ID, removed[0].ConversationID)
	require.NotNil(t, removed[0].UserID)
	assert.Equal(t, carol.UserID, *removed[0].UserID)
	assert.ElementsMatch(t, []uuid.UUID{alice.UserID, bob.UserID}, removed[0].Participants)
	assert.Empty(t, f.log.ofKind(events.ConversationDeleted))

	f.send(t, alice, conv, "after carol left")
	created := f.log.ofKind(events.MessageCreated)
	require.Len(t, created, 1)
	assert.NotContains(t, created[0].Participants, carol.UserID)
}

func TestRemovingLastParticipantDeletesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.conversation(t, alice, bob)

	_, err := f.conversations.RemoveParticipant(ctx, alice, conv.ID, bob.UserID)
	require.NoError(t, err)
	summary, err := f.conversations.RemoveParticipant(ctx, alice, conv.ID, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, summary.Participants)

	_, err = f.store.Conversations().GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)
	assert.Len(t, f.log.ofKind(events.ParticipantRemoved), 2)
	deleted := f.log.ofKind(events.ConversationDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, conv.ID, deleted[0].ConversationID)
}
