// Package gateway is the typed client for the chat backend's JSON API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
)

var validate = validator.New()

// envelope is the response shape shared by every endpoint
type envelope struct {
	Success       bool                   `json:"success"`
	Message       json.RawMessage        `json:"message,omitempty"`
	User          *domain.User           `json:"user,omitempty"`
	Conversations []domain.Conversation  `json:"conversations,omitempty"`
	Conversation  *domain.Conversation   `json:"conversation,omitempty"`
	Messages      []domain.StoredMessage `json:"messages,omitempty"`
}

// text returns the message field when it holds a string
func (e *envelope) text() string {
	var s string
	if len(e.Message) > 0 && json.Unmarshal(e.Message, &s) == nil {
		return s
	}
	return ""
}

type conversationCreate struct {
	Title string `json:"title" validate:"required,max=255"`
}

// Option configures a Gateway
type Option func(*Gateway)

// WithRetries sets how often idempotent reads are retried after a transport
// failure and the first wait between attempts.
func WithRetries(max uint64, initial time.Duration) Option {
	return func(g *Gateway) {
		g.maxRetries = max
		g.initialBackoff = initial
	}
}

// Gateway talks to the persistence endpoints
type Gateway struct {
	baseURL        string
	client         *http.Client
	maxRetries     uint64
	initialBackoff time.Duration
}

// New creates a gateway for the backend at baseURL
func New(baseURL string, httpClient *http.Client, opts ...Option) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	g := &Gateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         httpClient,
		maxRetries:     2,
		initialBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register creates a user account
func (g *Gateway) Register(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	env, err := g.do(ctx, "register", http.MethodPost, "/api/users/register", input)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, missingField("register", "user")
	}
	return env.User, nil
}

// Login checks credentials and returns the user
func (g *Gateway) Login(ctx context.Context, input domain.UserLogin) (*domain.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	env, err := g.do(ctx, "login", http.MethodPost, "/api/users/login", input)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, missingField("login", "user")
	}
	return env.User, nil
}

// ListConversations returns the user's conversations in backend order
func (g *Gateway) ListConversations(ctx context.Context, userID domain.ID) ([]domain.Conversation, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	env, err := g.get(ctx, "list conversations", "/api/users/"+url.PathEscape(userID.String())+"/conversations")
	if err != nil {
		return nil, err
	}
	return env.Conversations, nil
}

// CreateConversation creates a conversation titled title
func (g *Gateway) CreateConversation(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	input := conversationCreate{Title: title}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	env, err := g.do(ctx, "create conversation", http.MethodPost,
		"/api/users/"+url.PathEscape(userID.String())+"/conversations", input)
	if err != nil {
		return nil, err
	}
	if env.Conversation == nil {
		return nil, missingField("create conversation", "conversation")
	}
	return env.Conversation, nil
}

// DeleteConversation removes a conversation and its messages on the backend
func (g *Gateway) DeleteConversation(ctx context.Context, conversationID domain.ID) error {
	_, err := g.do(ctx, "delete conversation", http.MethodDelete,
		"/api/users/conversations/"+url.PathEscape(conversationID.String()), nil)
	return err
}

// ListMessages returns the persisted messages of a conversation in order
func (g *Gateway) ListMessages(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error) {
	env, err := g.get(ctx, "list messages",
		"/api/users/conversations/"+url.PathEscape(conversationID.String())+"/messages")
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

// SaveMessage persists one message. It is not retried here; callers decide.
func (g *Gateway) SaveMessage(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	env, err := g.do(ctx, "save message", http.MethodPost,
		"/api/users/conversations/"+url.PathEscape(conversationID.String())+"/messages", input)
	if err != nil {
		return nil, err
	}

	var saved domain.StoredMessage
	if len(env.Message) > 0 && !bytes.Equal(env.Message, []byte("null")) {
		if err := json.Unmarshal(env.Message, &saved); err != nil {
			return nil, &domain.TransportError{Op: "save message", Kind: domain.TransportMalformed, Err: err}
		}
	}
	return &saved, nil
}

// get performs an idempotent request, retrying transport failures
func (g *Gateway) get(ctx context.Context, op, path string) (*envelope, error) {
	var env *envelope
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		env, err = g.do(ctx, op, http.MethodGet, path, nil)
		if err != nil && !domain.IsTransport(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Debug().Str("component", "gateway").Str("op", op).Int("attempt", attempt).Err(err).Msg("request failed")
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initialBackoff
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (g *Gateway) do(ctx context.Context, op, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Kind: domain.TransportConnect, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Kind: domain.TransportRead, Status: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &domain.TransportError{Op: op, Kind: domain.TransportEmptyBody, Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domain.TransportError{Op: op, Kind: domain.TransportMalformed, Status: resp.StatusCode, Err: err}
	}
	if !env.Success {
		return nil, &domain.BackendError{Op: op, Status: resp.StatusCode, Message: env.text()}
	}

	return &env, nil
}

func missingField(op, field string) error {
	return &domain.TransportError{
		Op:   op,
		Kind: domain.TransportMalformed,
		Err:  fmt.Errorf("response has no %q field", field),
	}
}

func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s is %s", strings.ToLower(e.Field()), e.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
}
