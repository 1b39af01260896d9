package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Rrens/streamchat/internal/domain"
)

const sessionPrefix = "streamchat:session:"

// SessionStore implements domain.SessionStore in Redis, for clients that
// share their login across machines
type SessionStore struct {
	client *Client
	key    string
}

// NewSessionStore stores the current user under key
func NewSessionStore(client *Client, key string) *SessionStore {
	return &SessionStore{client: client, key: sessionPrefix + key}
}

// Load returns the stored user, or nil when nobody is logged in
func (s *SessionStore) Load(ctx context.Context) (*domain.User, error) {
	data, err := s.client.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &user, nil
}

// Save stores user without expiry
func (s *SessionStore) Save(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear forgets the stored user
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.client.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
