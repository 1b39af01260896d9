package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/domain"
)

func TestStore_ConversationsAndMessages(t *testing.T) {
	s := New()
	ctx := context.Background()

	user := &domain.User{Username: "alice", Email: "a@example.com"}
	require.NoError(t, s.Users().Create(ctx, user, "hash"))
	assert.Equal(t, domain.ID("1"), user.ID)

	exists, err := s.Users().UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Users().EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Users().EmailExists(ctx, "b@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	c1, err := s.Conversations().Create(ctx, user.ID, "first")
	require.NoError(t, err)
	c2, err := s.Conversations().Create(ctx, user.ID, "second")
	require.NoError(t, err)
	_, err = s.Conversations().Create(ctx, "99", "other user")
	require.NoError(t, err)

	list, err := s.Conversations().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Conversation{*c1, *c2}, list)

	_, err = s.Messages().Create(ctx, c1.ID, domain.MessageCreate{UserID: user.ID, Content: "hello", SenderType: domain.SenderUser})
	require.NoError(t, err)

	_, err = s.Messages().Create(ctx, "404", domain.MessageCreate{UserID: user.ID, Content: "x", SenderType: domain.SenderUser})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	require.NoError(t, s.Conversations().Delete(ctx, c1.ID))
	msgs, err := s.Messages().ListByConversation(ctx, c1.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.ErrorIs(t, s.Conversations().Delete(ctx, c1.ID), domain.ErrConversationNotFound)
}
