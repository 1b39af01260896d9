package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
)

// AuthService handles registration, login and the remembered current user
type AuthService struct {
	auth     Authenticator
	sessions domain.SessionStore

	mu      sync.RWMutex
	current *domain.User
}

// NewAuthService creates a new auth service
func NewAuthService(auth Authenticator, sessions domain.SessionStore) *AuthService {
	return &AuthService{
		auth:     auth,
		sessions: sessions,
	}
}

// Register creates an account. The new user is not logged in.
func (s *AuthService) Register(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	user, err := s.auth.Register(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	log.Info().Str("component", "auth").Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Login checks credentials and remembers the user
func (s *AuthService) Login(ctx context.Context, input domain.UserLogin) (*domain.User, error) {
	user, err := s.auth.Login(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	if err := s.sessions.Save(ctx, user); err != nil {
		// the login itself succeeded; only the next start will ask again
		log.Error().Err(err).Str("component", "auth").Msg("failed to remember user")
	}

	s.mu.Lock()
	s.current = user
	s.mu.Unlock()

	log.Info().Str("component", "auth").Str("user_id", user.ID.String()).Msg("user logged in")
	return user, nil
}

// Logout forgets the current user
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Restore loads the remembered user, if any
func (s *AuthService) Restore(ctx context.Context) (*domain.User, error) {
	user, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	s.mu.Lock()
	s.current = user
	s.mu.Unlock()
	return user, nil
}

// Current returns the logged-in user or ErrNotLoggedIn
func (s *AuthService) Current() (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, domain.ErrNotLoggedIn
	}
	return s.current, nil
}
