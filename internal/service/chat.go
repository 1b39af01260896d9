package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/i18n"
	"github.com/Rrens/streamchat/internal/store"
	"github.com/Rrens/streamchat/internal/stream"
)

// TurnState is the per-conversation position in a send/reply cycle
type TurnState string

const (
	TurnIdle          TurnState = "IDLE"
	TurnSendingUser   TurnState = "SENDING_USER_MSG"
	TurnAwaitingReply TurnState = "AWAITING_REPLY"
	TurnSettling      TurnState = "SETTLING"
)

type turn struct {
	state  TurnState
	cancel context.CancelFunc
}

// ChatOptions tunes ChatService
type ChatOptions struct {
	// SaveRetries bounds retries of the final reply save after transport failures
	SaveRetries   uint64
	RetryInterval time.Duration
}

// ChatService runs one send/reply turn at a time per conversation
type ChatService struct {
	persistence Persistence
	streamer    Streamer
	store       *store.Store
	notifier    Notifier
	tr          *i18n.Translator
	opts        ChatOptions
	now         func() time.Time

	mu    sync.Mutex
	turns map[domain.ID]*turn
}

// NewChatService creates a new chat service
func NewChatService(
	persistence Persistence,
	streamer Streamer,
	st *store.Store,
	notifier Notifier,
	tr *i18n.Translator,
	opts ChatOptions,
) *ChatService {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &ChatService{
		persistence: persistence,
		streamer:    streamer,
		store:       st,
		notifier:    notifier,
		tr:          tr,
		opts:        opts,
		now:         time.Now,
		turns:       make(map[domain.ID]*turn),
	}
}

// State returns the turn state of a conversation
func (s *ChatService) State(conversationID domain.ID) TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[conversationID]; ok {
		return t.state
	}
	return TurnIdle
}

// Busy reports whether a turn is running for the conversation
func (s *ChatService) Busy(conversationID domain.ID) bool {
	return s.State(conversationID) != TurnIdle
}

// Cancel aborts the running turn of a conversation, if any. The reply
// settles as failed.
func (s *ChatService) Cancel(conversationID domain.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[conversationID]; ok {
		t.cancel()
	}
}

// Send runs a full turn: the user message is shown and saved, the reply is
// streamed into the store and persisted when complete. It blocks until the
// turn settles and returns the settled reply. A non-nil error together with a
// reply means the reply failed and now holds the error text.
func (s *ChatService) Send(ctx context.Context, user *domain.User, conversationID domain.ID, text string) (*domain.Message, error) {
	if user == nil {
		return nil, domain.ErrNotLoggedIn
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.begin(conversationID, cancel); err != nil {
		return nil, err
	}
	defer s.end(conversationID)

	logger := log.With().
		Str("component", "chat").
		Str("conversation_id", conversationID.String()).
		Logger()

	s.submitUserMessage(ctx, logger, user, conversationID, text)

	s.setState(conversationID, TurnAwaitingReply)
	reply := domain.Message{
		ID:        domain.ID(uuid.NewString()),
		Sender:    domain.SenderAssistant,
		CreatedAt: s.now(),
		Streaming: true,
	}
	if err := s.store.AppendMessage(conversationID, reply); err != nil {
		logger.Error().Err(err).Msg("failed to add reply placeholder")
		s.notifier.Notify(Notice{
			Level:          NoticeError,
			ConversationID: conversationID,
			Text:           s.tr.Describe(err),
			Err:            err,
		})
		return nil, fmt.Errorf("failed to add reply placeholder: %w", err)
	}

	src, err := s.streamer.Open(ctx, text)
	if err != nil {
		return s.fail(ctx, logger, user, conversationID, reply.ID, err)
	}

	session := stream.New(conversationID, src)
	defer session.Close()

	var (
		settled  bool
		result   *domain.Message
		replyErr error
	)
	stream.Handler{
		OnChunk: func(_, text string) {
			if _, err := s.store.UpdateMessageText(conversationID, reply.ID, text, true); err != nil {
				logger.Warn().Err(err).Msg("failed to apply chunk")
			}
		},
		OnComplete: func(text string) {
			settled = true
			result, replyErr = s.settle(ctx, logger, user, conversationID, reply.ID, text)
		},
		OnFailure: func(err error, _ string) {
			settled = true
			result, replyErr = s.fail(ctx, logger, user, conversationID, reply.ID, err)
		},
	}.Dispatch(session.Start(ctx))
	if settled {
		return result, replyErr
	}

	// the session was closed before it ended
	return s.fail(ctx, logger, user, conversationID, reply.ID, stream.ErrClosed)
}

func (s *ChatService) begin(conversationID domain.ID, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.turns[conversationID]; busy {
		return domain.ErrConversationBusy
	}
	s.turns[conversationID] = &turn{state: TurnSendingUser, cancel: cancel}
	return nil
}

func (s *ChatService) setState(conversationID domain.ID, state TurnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[conversationID]; ok {
		t.state = state
	}
}

func (s *ChatService) end(conversationID domain.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, conversationID)
}

// submitUserMessage shows the message before it is saved. A failed save is
// reported but the message stays, so the view can drift from the server
// until ConversationService.Reload.
func (s *ChatService) submitUserMessage(ctx context.Context, logger zerolog.Logger, user *domain.User, conversationID domain.ID, text string) {
	msg := domain.Message{
		ID:        domain.ID(uuid.NewString()),
		Text:      text,
		Sender:    domain.SenderUser,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(conversationID, msg); err != nil {
		logger.Warn().Err(err).Msg("failed to add user message")
	}

	saved, err := s.persistence.SaveMessage(ctx, conversationID, domain.MessageCreate{
		UserID:     user.ID,
		Content:    text,
		SenderType: domain.SenderUser,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to save user message")
		s.notifier.Notify(Notice{
			Level:          NoticeError,
			ConversationID: conversationID,
			Text:           s.tr.Describe(err),
			Err:            err,
		})
		return
	}

	s.adoptID(conversationID, msg.ID, saved.ID)
}

// adoptID replaces an optimistic id with the persisted one and returns the id
// the message now has
func (s *ChatService) adoptID(conversationID, localID, savedID domain.ID) domain.ID {
	if savedID.IsZero() {
		return localID
	}
	if err := s.store.ReplaceMessageID(conversationID, localID, savedID); err != nil {
		log.Debug().Err(err).Str("component", "chat").Msg("failed to adopt saved message id")
		return localID
	}
	return savedID
}

// settle finishes a completed reply
func (s *ChatService) settle(ctx context.Context, logger zerolog.Logger, user *domain.User, conversationID, replyID domain.ID, text string) (*domain.Message, error) {
	s.setState(conversationID, TurnSettling)

	if _, err := s.store.UpdateMessageText(conversationID, replyID, text, false); err != nil {
		logger.Warn().Err(err).Msg("failed to finish reply")
	}

	saveCtx := context.WithoutCancel(ctx)
	saved, err := s.saveWithRetry(saveCtx, conversationID, domain.MessageCreate{
		UserID:     user.ID,
		Content:    text,
		SenderType: domain.SenderAssistant,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to save reply")
		s.notifier.Notify(Notice{
			Level:          NoticeError,
			ConversationID: conversationID,
			Text:           s.tr.Describe(err),
			Err:            err,
		})
	} else {
		replyID = s.adoptID(conversationID, replyID, saved.ID)
	}

	logger.Info().Int("length", len(text)).Msg("reply completed")
	return s.findMessage(conversationID, replyID), nil
}

// fail replaces the reply with the localized error text and stores it
// best-effort. A failure to store it is only reported.
func (s *ChatService) fail(ctx context.Context, logger zerolog.Logger, user *domain.User, conversationID, replyID domain.ID, cause error) (*domain.Message, error) {
	s.setState(conversationID, TurnSettling)
	logger.Error().Err(cause).Msg("reply failed")

	text := s.tr.ReplyFailed(cause)
	if _, err := s.store.UpdateMessageText(conversationID, replyID, text, false); err != nil {
		logger.Warn().Err(err).Msg("failed to show reply error")
	}

	saved, err := s.persistence.SaveMessage(context.WithoutCancel(ctx), conversationID, domain.MessageCreate{
		UserID:     user.ID,
		Content:    text,
		SenderType: domain.SenderAssistant,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to save reply error")
		s.notifier.Notify(Notice{
			Level:          NoticeWarning,
			ConversationID: conversationID,
			Text:           s.tr.Describe(err),
			Err:            err,
		})
	} else {
		replyID = s.adoptID(conversationID, replyID, saved.ID)
	}

	return s.findMessage(conversationID, replyID), fmt.Errorf("reply failed: %w", cause)
}

func (s *ChatService) saveWithRetry(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	var saved *domain.StoredMessage

	operation := func() error {
		var err error
		saved, err = s.persistence.SaveMessage(ctx, conversationID, input)
		if err != nil && !domain.IsTransport(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.SaveRetries), ctx)); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ChatService) findMessage(conversationID, messageID domain.ID) *domain.Message {
	for _, m := range s.store.ListMessages(conversationID) {
		if m.ID == messageID {
			return &m
		}
	}
	return nil
}

// IsRejected reports whether err means a send was refused before anything
// was shown
func IsRejected(err error) bool {
	return errors.Is(err, domain.ErrConversationBusy) ||
		errors.Is(err, domain.ErrNotLoggedIn) ||
		errors.Is(err, domain.ErrInvalidInput)
}
