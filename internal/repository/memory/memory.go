// Package memory is an in-process store for the development backend, used
// when no database is configured. Data is lost on restart.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Rrens/streamchat/internal/domain"
)

type userRecord struct {
	user domain.User
	hash string
}

type conversationRecord struct {
	conv   domain.Conversation
	userID domain.ID
}

// Store implements the user, conversation and message repositories
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	users         map[string]userRecord
	conversations []conversationRecord
	messages      map[domain.ID][]domain.StoredMessage
	now           func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:    make(map[string]userRecord),
		messages: make(map[domain.ID][]domain.StoredMessage),
		now:      time.Now,
	}
}

// id must be called with mu held
func (s *Store) id() domain.ID {
	s.nextID++
	return domain.ID(strconv.FormatInt(s.nextID, 10))
}

// Users returns the store as a domain.UserRepository
func (s *Store) Users() domain.UserRepository { return userRepo{s} }

// Conversations returns the store as a domain.ConversationRepository
func (s *Store) Conversations() domain.ConversationRepository { return conversationRepo{s} }

// Messages returns the store as a domain.MessageRepository
func (s *Store) Messages() domain.MessageRepository { return messageRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *domain.User, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.ID = r.s.id()
	r.s.users[user.Username] = userRecord{user: *user, hash: passwordHash}
	return nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[username]
	if !ok {
		return nil, "", nil
	}
	user := rec.user
	return &user, rec.hash, nil
}

func (r userRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.users[username]
	return ok, nil
}

func (r userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.users {
		if rec.user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

type conversationRepo struct{ s *Store }

func (r conversationRepo) Create(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	conv := domain.Conversation{ID: r.s.id(), Title: title}
	r.s.conversations = append(r.s.conversations, conversationRecord{conv: conv, userID: userID})
	return &conv, nil
}

func (r conversationRepo) ListByUser(ctx context.Context, userID domain.ID) ([]domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Conversation{}
	for _, rec := range r.s.conversations {
		if rec.userID == userID {
			out = append(out, rec.conv)
		}
	}
	return out, nil
}

func (r conversationRepo) Exists(ctx context.Context, id domain.ID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.indexOf(id) >= 0, nil
}

func (r conversationRepo) Delete(ctx context.Context, id domain.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx := r.s.indexOf(id)
	if idx < 0 {
		return domain.ErrConversationNotFound
	}
	r.s.conversations = slices.Delete(r.s.conversations, idx, idx+1)
	delete(r.s.messages, id)
	return nil
}

// indexOf must be called with mu held
func (s *Store) indexOf(id domain.ID) int {
	return slices.IndexFunc(s.conversations, func(rec conversationRecord) bool { return rec.conv.ID == id })
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.indexOf(conversationID) < 0 {
		return nil, domain.ErrConversationNotFound
	}
	msg := domain.StoredMessage{
		ID:         r.s.id(),
		Content:    input.Content,
		SenderType: input.SenderType,
		CreatedAt:  domain.Timestamp{Time: r.s.now()},
	}
	r.s.messages[conversationID] = append(r.s.messages[conversationID], msg)
	return &msg, nil
}

func (r messageRepo) ListByConversation(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := slices.Clone(r.s.messages[conversationID])
	if out == nil {
		out = []domain.StoredMessage{}
	}
	return out, nil
}
