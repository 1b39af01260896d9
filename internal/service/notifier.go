package service

import (
	"context"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/stream"
)

// Persistence is the part of the backend API the services depend on
type Persistence interface {
	ListConversations(ctx context.Context, userID domain.ID) ([]domain.Conversation, error)
	CreateConversation(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID domain.ID) error
	ListMessages(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error)
	SaveMessage(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error)
}

// Authenticator registers and logs in users against the backend
type Authenticator interface {
	Register(ctx context.Context, input domain.UserCreate) (*domain.User, error)
	Login(ctx context.Context, input domain.UserLogin) (*domain.User, error)
}

// Streamer opens a streamed reply to message
type Streamer interface {
	Open(ctx context.Context, message string) (stream.Source, error)
}

// StreamerFunc adapts a function to Streamer
type StreamerFunc func(ctx context.Context, message string) (stream.Source, error)

func (f StreamerFunc) Open(ctx context.Context, message string) (stream.Source, error) {
	return f(ctx, message)
}

// NoticeLevel grades a Notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a dismissible, user-visible notification
type Notice struct {
	Level          NoticeLevel
	ConversationID domain.ID
	Text           string
	Err            error
}

// Notifier receives notices. Implementations must not block for long.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}
