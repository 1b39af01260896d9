package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/i18n"
	"github.com/Rrens/streamchat/internal/store"
)

// TurnTracker reports whether a conversation has a reply in flight
type TurnTracker interface {
	Busy(conversationID domain.ID) bool
}

// ConversationService keeps the conversation list and the active selection
type ConversationService struct {
	persistence Persistence
	store       *store.Store
	turns       TurnTracker
	tr          *i18n.Translator

	mu            sync.RWMutex
	user          *domain.User
	conversations []domain.Conversation
	active        domain.ID
}

// NewConversationService creates a new conversation service
func NewConversationService(persistence Persistence, st *store.Store, turns TurnTracker, tr *i18n.Translator) *ConversationService {
	return &ConversationService{
		persistence: persistence,
		store:       st,
		turns:       turns,
		tr:          tr,
	}
}

// Load fetches the user's conversations, creating the default one when the
// user has none, and activates the first.
func (s *ConversationService) Load(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrNotLoggedIn
	}

	convs, err := s.persistence.ListConversations(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	if len(convs) == 0 {
		conv, err := s.persistence.CreateConversation(ctx, user.ID, s.tr.DefaultTitle())
		if err != nil {
			return fmt.Errorf("failed to create default conversation: %w", err)
		}
		convs = []domain.Conversation{*conv}
	}

	s.mu.Lock()
	var stale []domain.ID
	for _, old := range s.conversations {
		if !slices.ContainsFunc(convs, func(c domain.Conversation) bool { return c.ID == old.ID }) {
			stale = append(stale, old.ID)
		}
	}
	s.user = user
	s.conversations = convs
	s.active = convs[0].ID
	s.mu.Unlock()

	for _, id := range stale {
		s.store.RemoveConversation(id)
	}

	log.Info().
		Str("component", "conversations").
		Str("user_id", user.ID.String()).
		Int("count", len(convs)).
		Msg("conversations loaded")

	return s.loadMessages(ctx, convs[0].ID)
}

// Reset forgets the loaded user and conversations
func (s *ConversationService) Reset() {
	s.mu.Lock()
	convs := s.conversations
	s.user = nil
	s.conversations = nil
	s.active = ""
	s.mu.Unlock()

	for _, c := range convs {
		s.store.RemoveConversation(c.ID)
	}
}

// Conversations returns the conversation list in display order
func (s *ConversationService) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations)
}

// Active returns the active conversation
func (s *ConversationService) Active() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(s.active)
	if idx < 0 {
		return domain.Conversation{}, false
	}
	return s.conversations[idx], true
}

// Create makes a new conversation and activates it
func (s *ConversationService) Create(ctx context.Context, title string) (*domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	user, err := s.currentUser()
	if err != nil {
		return nil, err
	}

	conv, err := s.persistence.CreateConversation(ctx, user.ID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.store.ReplaceMessages(conv.ID, nil)

	s.mu.Lock()
	s.conversations = append(s.conversations, *conv)
	s.active = conv.ID
	s.mu.Unlock()

	return conv, nil
}

// Select activates a conversation, loading its messages on first use
func (s *ConversationService) Select(ctx context.Context, id domain.ID) error {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	s.active = id
	s.mu.Unlock()

	if len(s.store.ListMessages(id)) > 0 {
		return nil
	}
	return s.loadMessages(ctx, id)
}

// Delete removes a conversation. The last remaining conversation and
// conversations with a reply in flight cannot be deleted. Deleting the
// active conversation activates the first remaining one.
func (s *ConversationService) Delete(ctx context.Context, id domain.ID) error {
	s.mu.RLock()
	idx := s.indexOf(id)
	count := len(s.conversations)
	s.mu.RUnlock()

	if idx < 0 {
		return domain.ErrConversationNotFound
	}
	if count <= 1 {
		return domain.ErrLastConversation
	}
	if s.turns != nil && s.turns.Busy(id) {
		return domain.ErrConversationBusy
	}

	if err := s.persistence.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	s.mu.Lock()
	s.conversations = slices.DeleteFunc(s.conversations, func(c domain.Conversation) bool { return c.ID == id })
	wasActive := s.active == id
	if wasActive {
		s.active = ""
		if len(s.conversations) > 0 {
			s.active = s.conversations[0].ID
		}
	}
	next := s.active
	s.mu.Unlock()

	s.store.RemoveConversation(id)

	if wasActive && !next.IsZero() && len(s.store.ListMessages(next)) == 0 {
		return s.loadMessages(ctx, next)
	}
	return nil
}

// Rename changes a conversation's title in this client only
func (s *ConversationService) Rename(id domain.ID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.ErrConversationNotFound
	}
	s.conversations[idx].Title = title
	return nil
}

// Clear empties the local view of a conversation. Persisted messages stay.
func (s *ConversationService) Clear(id domain.ID) error {
	if s.turns != nil && s.turns.Busy(id) {
		return domain.ErrConversationBusy
	}
	return s.store.ClearMessages(id)
}

// Reload replaces the local messages of a conversation with the persisted
// ones, dropping optimistic entries whose save failed.
func (s *ConversationService) Reload(ctx context.Context, id domain.ID) error {
	if s.turns != nil && s.turns.Busy(id) {
		return domain.ErrConversationBusy
	}
	return s.loadMessages(ctx, id)
}

func (s *ConversationService) loadMessages(ctx context.Context, id domain.ID) error {
	stored, err := s.persistence.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.ToMessage())
	}
	s.store.ReplaceMessages(id, msgs)
	return nil
}

func (s *ConversationService) currentUser() (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, domain.ErrNotLoggedIn
	}
	return s.user, nil
}

// indexOf must be called with mu held
func (s *ConversationService) indexOf(id domain.ID) int {
	return slices.IndexFunc(s.conversations, func(c domain.Conversation) bool { return c.ID == id })
}
