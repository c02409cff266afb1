package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func seedConversation(t *testing.T, s *Store) (models.User, models.User, models.Conversation) {
	t.Helper()
	ctx := context.Background()
	alice := models.User{Username: "alice", Email: "alice@example.com", IsActive: true}
	bob := models.User{Username: "bob", Email: "bob@example.com", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, &alice))
	require.NoError(t, s.CreateUser(ctx, &bob))
	conv := models.Conversation{Participants: []uuid.UUID{alice.ID, bob.ID}}
	require.NoError(t, s.CreateConversation(ctx, &conv))
	return alice, bob, conv
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	alice, _, conv := seedConversation(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	var created uuid.UUID
	err := s.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		msg := models.Message{ConversationID: conv.ID, SenderID: alice.ID, Body: "lost"}
		if err := tx.Messages().CreateMessage(ctx, &msg); err != nil {
			return err
		}
		created = msg.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetMessage(ctx, created)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestIsolatedKeepsOuterWrites(t *testing.T) {
	s := NewStore()
	alice, bob, conv := seedConversation(t, s)
	ctx := context.Background()

	var msg models.Message
	err := s.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		msg = models.Message{ConversationID: conv.ID, SenderID: alice.ID, Body: "kept"}
		if err := tx.Messages().CreateMessage(ctx, &msg); err != nil {
			return err
		}
		isoErr := tx.Isolated(ctx, func(ctx context.Context, tx repositories.Store) error {
			n := models.Notification{UserID: bob.ID, MessageID: msg.ID}
			if err := tx.Notifications().CreateNotification(ctx, &n); err != nil {
				return err
			}
			return errors.New("second notification failed")
		})
		assert.Error(t, isoErr)
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	notes, err := s.ListNotifications(ctx, bob.ID, false)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &models.User{Username: "alice", Email: "a@example.com"}))

	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com"}), repositories.ErrDuplicate)
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Username: "other", Email: "a@example.com"}), repositories.ErrDuplicate)
}

func TestDeleteMessagesRemovesReplyTree(t *testing.T) {
	s := NewStore()
	alice, bob, conv := seedConversation(t, s)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	root := models.Message{ConversationID: conv.ID, SenderID: alice.ID, Body: "root", SentAt: base}
	require.NoError(t, s.CreateMessage(ctx, &root))
	reply := models.Message{ConversationID: conv.ID, SenderID: bob.ID, Body: "reply", ParentID: &root.ID, SentAt: base.Add(time.Second)}
	require.NoError(t, s.CreateMessage(ctx, &reply))
	nested := models.Message{ConversationID: conv.ID, SenderID: alice.ID, Body: "nested", ParentID: &reply.ID, SentAt: base.Add(2 * time.Second)}
	require.NoError(t, s.CreateMessage(ctx, &nested))

	subtree, err := s.MessageSubtree(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{root.ID, reply.ID, nested.ID}, subtree)

	owned, err := s.MessagesOfUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, reply.ID, owned[0].ID)
	assert.Equal(t, nested.ID, owned[1].ID)

	require.NoError(t, s.DeleteMessages(ctx, []uuid.UUID{root.ID}))
	count, err := s.CountConversationMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteEmptyConversations(t *testing.T) {
	s := NewStore()
	alice, bob, conv := seedConversation(t, s)
	ctx := context.Background()

	require.NoError(t, s.RemoveUserFromAll(ctx, alice.ID))
	require.NoError(t, s.DeleteEmptyConversations(ctx))
	_, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)

	require.NoError(t, s.RemoveParticipant(ctx, conv.ID, bob.ID))
	require.NoError(t, s.DeleteEmptyConversations(ctx))
	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)
}
