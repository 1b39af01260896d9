// Package store holds the client's in-memory view of every loaded conversation.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Rrens/streamchat/internal/domain"
)

// Change describes a mutation of one conversation
type Change struct {
	ConversationID domain.ID
	Version        uint64
	// Removed is set when the conversation was dropped
	Removed bool
}

type entry struct {
	messages []domain.Message
	version  uint64
}

// Store maps conversation ids to ordered messages. It is the single source
// of truth for rendering. Reads take a shared lock; subscribers are called
// after the lock is released, in mutation order for a single writer.
type Store struct {
	mu            sync.RWMutex
	conversations map[domain.ID]*entry

	subMu       sync.RWMutex
	subscribers map[int]func(Change)
	nextSub     int
}

// New creates an empty store
func New() *Store {
	return &Store{
		conversations: make(map[domain.ID]*entry),
		subscribers:   make(map[int]func(Change)),
	}
}

// Subscribe registers fn for every change and returns a function that removes it
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// AddConversation registers an empty conversation. Adding a known id is a no-op.
func (s *Store) AddConversation(id domain.ID) {
	s.mu.Lock()
	if _, ok := s.conversations[id]; ok {
		s.mu.Unlock()
		return
	}
	e := &entry{version: 1}
	s.conversations[id] = e
	s.mu.Unlock()

	s.notify(Change{ConversationID: id, Version: e.version})
}

// HasConversation reports whether id is loaded
func (s *Store) HasConversation(id domain.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[id]
	return ok
}

// Version returns the change counter of a conversation, zero when unknown
func (s *Store) Version(id domain.ID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.conversations[id]; ok {
		return e.version
	}
	return 0
}

// AppendMessage adds msg at the end of the conversation, creating it if needed.
// At most one streaming message may exist per conversation.
func (s *Store) AppendMessage(conversationID domain.ID, msg domain.Message) error {
	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if !ok {
		e = &entry{}
		s.conversations[conversationID] = e
	}
	if msg.Streaming && slices.ContainsFunc(e.messages, func(m domain.Message) bool { return m.Streaming }) {
		s.mu.Unlock()
		return fmt.Errorf("conversation %s already has a streaming message", conversationID)
	}
	e.messages = append(e.messages, msg)
	e.version++
	v := e.version
	s.mu.Unlock()

	s.notify(Change{ConversationID: conversationID, Version: v})
	return nil
}

// UpdateMessageText sets the text and streaming flag of one message. It
// reports whether anything changed; an identical update bumps no version and
// notifies nobody.
func (s *Store) UpdateMessageText(conversationID, messageID domain.ID, text string, streaming bool) (bool, error) {
	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return false, domain.ErrConversationNotFound
	}
	idx := slices.IndexFunc(e.messages, func(m domain.Message) bool { return m.ID == messageID })
	if idx < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("message %s not found in conversation %s", messageID, conversationID)
	}

	m := &e.messages[idx]
	if m.Text == text && m.Streaming == streaming {
		s.mu.Unlock()
		return false, nil
	}
	m.Text = text
	m.Streaming = streaming
	e.version++
	v := e.version
	s.mu.Unlock()

	s.notify(Change{ConversationID: conversationID, Version: v})
	return true, nil
}

// ReplaceMessageID swaps an optimistic id for the one assigned by the backend
func (s *Store) ReplaceMessageID(conversationID, oldID, newID domain.ID) error {
	if oldID == newID || newID.IsZero() {
		return nil
	}

	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	idx := slices.IndexFunc(e.messages, func(m domain.Message) bool { return m.ID == oldID })
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("message %s not found in conversation %s", oldID, conversationID)
	}
	e.messages[idx].ID = newID
	e.version++
	v := e.version
	s.mu.Unlock()

	s.notify(Change{ConversationID: conversationID, Version: v})
	return nil
}

// ListMessages returns a copy of the conversation's messages in order
func (s *Store) ListMessages(conversationID domain.ID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	return slices.Clone(e.messages)
}

// ReplaceMessages overwrites the conversation's messages with msgs
func (s *Store) ReplaceMessages(conversationID domain.ID, msgs []domain.Message) {
	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if !ok {
		e = &entry{}
		s.conversations[conversationID] = e
	}
	e.messages = slices.Clone(msgs)
	e.version++
	v := e.version
	s.mu.Unlock()

	s.notify(Change{ConversationID: conversationID, Version: v})
}

// ClearMessages empties the conversation without removing it
func (s *Store) ClearMessages(conversationID domain.ID) error {
	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	e.messages = nil
	e.version++
	v := e.version
	s.mu.Unlock()

	s.notify(Change{ConversationID: conversationID, Version: v})
	return nil
}

// RemoveConversation drops the conversation and all its messages
func (s *Store) RemoveConversation(conversationID domain.ID) {
	s.mu.Lock()
	_, ok := s.conversations[conversationID]
	delete(s.conversations, conversationID)
	s.mu.Unlock()

	if ok {
		s.notify(Change{ConversationID: conversationID, Removed: true})
	}
}
