// Package backend implements the persistence and streaming endpoints the chat
// client talks to. It backs cmd/devserver and the end-to-end tests.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/llm"
)

// Errors whose text is shown to the client as the envelope message
var (
	ErrUsernameTaken   = errors.New("用户名已存在")
	ErrEmailTaken      = errors.New("邮箱已被注册")
	ErrUserNotFound    = errors.New("用户不存在")
	ErrWrongPassword   = errors.New("密码错误")
	ErrNoConversation  = errors.New("对话不存在")
	ErrEmptyPrompt     = errors.New("消息不能为空")
	ErrInvalidSender   = errors.New("无效的发送者类型")
	ErrMissingTitle    = errors.New("请输入对话标题")
	ErrProviderMissing = errors.New("没有可用的模型")
)

// Service implements the backend operations
type Service struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	llm           *llm.Router
}

// NewService creates a new backend service
func NewService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	router *llm.Router,
) *Service {
	return &Service{
		users:         users,
		conversations: conversations,
		messages:      messages,
		llm:           router,
	}
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	exists, err := s.users.UsernameExists(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	exists, err = s.users.EmailExists(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username: input.Username,
		Email:    input.Email,
	}
	if err := s.users.Create(ctx, user, string(hashedPassword)); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Login verifies credentials and returns the user
func (s *Service) Login(ctx context.Context, input domain.UserLogin) (*domain.User, error) {
	user, hash, err := s.users.GetByUsername(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.Password)); err != nil {
		return nil, ErrWrongPassword
	}

	return user, nil
}

// ListConversations returns the user's conversations
func (s *Service) ListConversations(ctx context.Context, userID domain.ID) ([]domain.Conversation, error) {
	conversations, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// CreateConversation creates a conversation owned by userID
func (s *Service) CreateConversation(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrMissingTitle
	}

	conv, err := s.conversations.Create(ctx, userID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages
func (s *Service) DeleteConversation(ctx context.Context, id domain.ID) error {
	if err := s.conversations.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return ErrNoConversation
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first
func (s *Service) ListMessages(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error) {
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// SaveMessage appends a message to a conversation
func (s *Service) SaveMessage(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	if !input.SenderType.Valid() {
		return nil, ErrInvalidSender
	}
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, conversationID, input)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, ErrNoConversation
		}
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// StreamReply generates a reply to prompt with the default provider, handing
// each piece to emit as it arrives
func (s *Service) StreamReply(ctx context.Context, prompt string, emit llm.EmitFunc) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	provider, err := s.llm.GetProvider("")
	if err != nil {
		log.Error().Err(err).Str("provider", s.llm.DefaultProvider()).Msg("no reply provider")
		return fmt.Errorf("%w: %v", ErrProviderMissing, err)
	}

	if err := provider.Stream(ctx, llm.Request{Prompt: prompt}, "", emit); err != nil {
		return fmt.Errorf("%s: %w", provider.Name(), err)
	}
	return nil
}

// Reply generates a complete reply to prompt. A failure discards the partial
// text.
func (s *Service) Reply(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	err := s.StreamReply(ctx, prompt, func(text string) error {
		sb.WriteString(text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Providers describes the registered reply providers
func (s *Service) Providers() []llm.ProviderInfo {
	return s.llm.GetProvidersInfo()
}

func (s *Service) requireConversation(ctx context.Context, id domain.ID) error {
	exists, err := s.conversations.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if !exists {
		return ErrNoConversation
	}
	return nil
}

// IsUserError reports whether err carries a message meant for the client
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrUsernameTaken, ErrEmailTaken, ErrUserNotFound, ErrWrongPassword,
		ErrNoConversation, ErrEmptyPrompt, ErrInvalidSender, ErrMissingTitle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
