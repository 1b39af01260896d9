package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/api"
	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/gateway"
	"github.com/Rrens/streamchat/internal/i18n"
	"github.com/Rrens/streamchat/internal/llm"
	"github.com/Rrens/streamchat/internal/repository/memory"
	"github.com/Rrens/streamchat/internal/service"
	"github.com/Rrens/streamchat/internal/store"
	"github.com/Rrens/streamchat/internal/stream"
	"github.com/Rrens/streamchat/internal/transport"
)

// scriptedProvider replies with fixed pieces and then an optional error
type scriptedProvider struct {
	pieces []string
	err    error
}

func (p scriptedProvider) Name() string              { return "scripted" }
func (p scriptedProvider) AvailableModels() []string { return []string{"scripted"} }
func (p scriptedProvider) DefaultModel() string      { return "scripted" }
func (p scriptedProvider) IsConfigured() bool        { return true }
func (p scriptedProvider) Stream(ctx context.Context, req llm.Request, model string, emit llm.EmitFunc) error {
	for _, piece := range p.pieces {
		if err := emit(piece); err != nil {
			return err
		}
		// keep pieces in separate reads on the client
		time.Sleep(20 * time.Millisecond)
	}
	return p.err
}

type client struct {
	gateway       *gateway.Gateway
	store         *store.Store
	chat          *service.ChatService
	conversations *service.ConversationService
	auth          *service.AuthService
}

type memorySessions struct {
	mu   sync.Mutex
	user *domain.User
}

func (m *memorySessions) Load(ctx context.Context) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, nil
}

func (m *memorySessions) Save(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	return nil
}

func (m *memorySessions) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

func startBackend(t *testing.T, provider llm.Provider) *httptest.Server {
	t.Helper()
	mem := memory.New()
	router := llm.NewRouter(provider.Name())
	router.RegisterProvider(provider)
	svc := backend.NewService(mem.Users(), mem.Conversations(), mem.Messages(), router)

	srv := httptest.NewServer(api.NewRouter(&config.Config{}, api.Dependencies{Service: svc}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(baseURL string) *client {
	tr := i18n.New("zh-CN")
	st := store.New()
	gw := gateway.New(baseURL, &http.Client{Timeout: 5 * time.Second}, gateway.WithRetries(1, time.Millisecond))
	streams := transport.NewClient(baseURL, nil, transport.WithIdleTimeout(5*time.Second))

	chat := service.NewChatService(gw, service.StreamerFunc(func(ctx context.Context, message string) (stream.Source, error) {
		return streams.Open(ctx, message)
	}), st, nil, tr, service.ChatOptions{SaveRetries: 1, RetryInterval: time.Millisecond})

	return &client{
		gateway:       gw,
		store:         st,
		chat:          chat,
		conversations: service.NewConversationService(gw, st, chat, tr),
		auth:          service.NewAuthService(gw, &memorySessions{}),
	}
}

func (c *client) login(t *testing.T) *domain.User {
	t.Helper()
	ctx := context.Background()
	_, err := c.auth.Register(ctx, domain.UserCreate{Username: "alice", Password: "secret", Email: "alice@example.com"})
	require.NoError(t, err)
	user, err := c.auth.Login(ctx, domain.UserLogin{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, c.conversations.Load(ctx, user))
	return user
}

func TestEndToEnd_StreamedReplyIsPersisted(t *testing.T) {
	srv := startBackend(t, scriptedProvider{pieces: []string{"Hi", " there"}})
	c := newClient(srv.URL)
	user := c.login(t)

	active, ok := c.conversations.Active()
	require.True(t, ok)
	assert.Equal(t, "默认对话", active.Title)

	var (
		mu    sync.Mutex
		texts []string
	)
	unsubscribe := c.store.Subscribe(func(ch store.Change) {
		msgs := c.store.ListMessages(ch.ConversationID)
		if len(msgs) == 0 {
			return
		}
		last := msgs[len(msgs)-1]
		if last.Sender != domain.SenderAssistant {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(texts) == 0 || texts[len(texts)-1] != last.Text {
			texts = append(texts, last.Text)
		}
	})
	defer unsubscribe()

	reply, err := c.chat.Send(context.Background(), user, active.ID, "hello")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "Hi there", reply.Text)
	assert.False(t, reply.Streaming)

	mu.Lock()
	assert.Equal(t, []string{"", "Hi", "Hi there"}, texts)
	mu.Unlock()

	stored, err := c.gateway.ListMessages(context.Background(), active.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hello", stored[0].Content)
	assert.Equal(t, domain.SenderUser, stored[0].SenderType)
	assert.Equal(t, "Hi there", stored[1].Content)
	assert.Equal(t, domain.SenderAssistant, stored[1].SenderType)
	assert.Equal(t, stored[1].ID, reply.ID)

	// a reload shows exactly what was persisted
	require.NoError(t, c.conversations.Reload(context.Background(), active.ID))
	msgs := c.store.ListMessages(active.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi there", msgs[1].Text)
}

func TestEndToEnd_InterruptedReplyShowsError(t *testing.T) {
	srv := startBackend(t, scriptedProvider{pieces: []string{"Hi"}, err: errors.New("model overloaded")})
	c := newClient(srv.URL)
	user := c.login(t)

	active, ok := c.conversations.Active()
	require.True(t, ok)

	reply, err := c.chat.Send(context.Background(), user, active.ID, "hello")
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))
	require.NotNil(t, reply)
	assert.True(t, strings.HasPrefix(reply.Text, "抱歉，发送消息时出错: "), reply.Text)
	assert.False(t, reply.Streaming)
	assert.False(t, c.chat.Busy(active.ID))

	stored, err := c.gateway.ListMessages(context.Background(), active.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.SenderAssistant, stored[1].SenderType)
	assert.Equal(t, reply.Text, stored[1].Content)
}

func TestEndToEnd_BackendDown(t *testing.T) {
	srv := startBackend(t, scriptedProvider{pieces: []string{"Hi"}})
	c := newClient(srv.URL)
	user := c.login(t)
	active, _ := c.conversations.Active()

	srv.Close()

	reply, err := c.chat.Send(context.Background(), user, active.ID, "hello")
	require.Error(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "抱歉，发送消息时出错: 无法连接到服务器，请检查网络连接或确保后端服务正在运行", reply.Text)

	// the user message stays visible even though it was never saved
	msgs := c.store.ListMessages(active.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
}
