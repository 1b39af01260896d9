package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/domain"
)

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSessionStore(ctx, path, "currentUser")
	require.NoError(t, err)
	defer s.Close()

	user, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, s.Save(ctx, &domain.User{ID: "1", Username: "alice"}))
	require.NoError(t, s.Save(ctx, &domain.User{ID: "2", Username: "bob"}))

	user, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, domain.ID("2"), user.ID)
	assert.Equal(t, "bob", user.Username)

	require.NoError(t, s.Clear(ctx))
	user, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSessionStore(ctx, path, "currentUser")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, &domain.User{ID: "7", Username: "carol"}))
	require.NoError(t, s.Close())

	s, err = OpenSessionStore(ctx, path, "currentUser")
	require.NoError(t, err)
	defer s.Close()

	user, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "carol", user.Username)
}

func TestOpenSessionStore_RequiresPath(t *testing.T) {
	_, err := OpenSessionStore(context.Background(), "", "currentUser")
	assert.Error(t, err)
}
