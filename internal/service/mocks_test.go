package service

import (
	"context"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/stream"
)

// MockPersistence mocks the Persistence interface
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) ListConversations(ctx context.Context, userID domain.ID) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockPersistence) CreateConversation(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error) {
	args := m.Called(ctx, userID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockPersistence) DeleteConversation(ctx context.Context, conversationID domain.ID) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MockPersistence) ListMessages(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredMessage), args.Error(1)
}

func (m *MockPersistence) SaveMessage(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	args := m.Called(ctx, conversationID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredMessage), args.Error(1)
}

// MockAuthenticator mocks the Authenticator interface
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Register(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthenticator) Login(ctx context.Context, input domain.UserLogin) (*domain.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockSessionStore mocks the SessionStore interface
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockSessionStore) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockSessionStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockStreamer mocks the Streamer interface
type MockStreamer struct {
	mock.Mock
}

func (m *MockStreamer) Open(ctx context.Context, message string) (stream.Source, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(stream.Source), args.Error(1)
}

// fakeSource replays fragments, then fails with err or ends
type fakeSource struct {
	mu        sync.Mutex
	fragments []string
	err       error
	// gate, when set, is received from before every fragment
	gate   chan struct{}
	closed bool
}

func (f *fakeSource) Next(ctx context.Context) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fragments) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	frag := f.fragments[0]
	f.fragments = f.fragments[1:]
	return frag, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
