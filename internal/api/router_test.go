package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/llm"
	"github.com/Rrens/streamchat/internal/llm/echo"
	"github.com/Rrens/streamchat/internal/repository/memory"
)

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Service == nil {
		store := memory.New()
		router := llm.NewRouter("echo")
		router.RegisterProvider(echo.NewProvider(0))
		deps.Service = backend.NewService(store.Users(), store.Conversations(), store.Messages(), router)
	}
	cfg := &config.Config{Server: config.ServerConfig{HandlerTimeout: 5 * time.Second}}
	return NewRouter(cfg, deps)
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec.Code, payload
}

func TestHealthCheck(t *testing.T) {
	h := newTestRouter(t, Dependencies{})

	code, payload := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "ok", payload["status"])

	code, payload = do(t, h, http.MethodGet, "/api/ready", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", payload["status"])
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestReadyCheck_DatabaseDown(t *testing.T) {
	h := newTestRouter(t, Dependencies{DB: failingPinger{}})

	code, payload := do(t, h, http.MethodGet, "/api/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, payload["success"])
}

func TestUserEndpoints(t *testing.T) {
	h := newTestRouter(t, Dependencies{})

	code, payload := do(t, h, http.MethodPost, "/api/users/register",
		`{"username":"alice","password":"secret","email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, payload["success"])
	user := payload["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotEmpty(t, user["id"])

	code, payload = do(t, h, http.MethodPost, "/api/users/register",
		`{"username":"alice","password":"secret","email":"other@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "用户名已存在", payload["message"])

	code, payload = do(t, h, http.MethodPost, "/api/users/register", `{"username":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "请求参数无效", payload["message"])
	assert.Contains(t, payload["errors"], "Password")

	code, payload = do(t, h, http.MethodPost, "/api/users/login", `{"username":"alice","password":"secret"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", payload["user"].(map[string]any)["username"])

	code, payload = do(t, h, http.MethodPost, "/api/users/login", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "密码错误", payload["message"])

	code, payload = do(t, h, http.MethodPost, "/api/users/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "无效的请求体", payload["message"])
}

func TestConversationEndpoints(t *testing.T) {
	h := newTestRouter(t, Dependencies{})

	_, payload := do(t, h, http.MethodPost, "/api/users/register",
		`{"username":"alice","password":"secret","email":"alice@example.com"}`)
	userID := payload["user"].(map[string]any)["id"].(string)

	code, payload := do(t, h, http.MethodGet, "/api/users/"+userID+"/conversations", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, payload["conversations"])

	code, payload = do(t, h, http.MethodPost, "/api/users/"+userID+"/conversations", `{"title":"默认对话"}`)
	require.Equal(t, http.StatusOK, code)
	conv := payload["conversation"].(map[string]any)
	convID := conv["id"].(string)
	assert.Equal(t, "默认对话", conv["title"])

	code, payload = do(t, h, http.MethodPost, "/api/users/conversations/"+convID+"/messages",
		`{"userId":`+userID+`,"content":"hello","senderType":"USER"}`)
	require.Equal(t, http.StatusOK, code)
	msg := payload["message"].(map[string]any)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, "USER", msg["senderType"])
	assert.NotEmpty(t, msg["createdAt"])

	code, payload = do(t, h, http.MethodPost, "/api/users/conversations/"+convID+"/messages",
		`{"userId":"`+userID+`","content":"x","senderType":"BOT"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, payload["errors"], "SenderType")

	code, payload = do(t, h, http.MethodGet, "/api/users/conversations/"+convID+"/messages", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, payload["messages"], 1)

	code, payload = do(t, h, http.MethodDelete, "/api/users/conversations/"+convID, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "对话删除成功", payload["message"])

	code, payload = do(t, h, http.MethodDelete, "/api/users/conversations/"+convID, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "对话不存在", payload["message"])

	code, payload = do(t, h, http.MethodGet, "/api/users/conversations/"+convID+"/messages", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "对话不存在", payload["message"])
}

func TestStreamingEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, Dependencies{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/streaming", "text/plain", strings.NewReader("你好 world"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "You said: 你好 world", string(body))

	resp, err = http.Post(srv.URL+"/api/chat/streaming", "text/plain", strings.NewReader("  "))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type interruptedProvider struct{}

func (interruptedProvider) Name() string              { return "flaky" }
func (interruptedProvider) AvailableModels() []string { return []string{"flaky"} }
func (interruptedProvider) DefaultModel() string      { return "flaky" }
func (interruptedProvider) IsConfigured() bool        { return true }
func (interruptedProvider) Stream(ctx context.Context, req llm.Request, model string, emit llm.EmitFunc) error {
	if err := emit("Hi"); err != nil {
		return err
	}
	return errors.New("model overloaded")
}

func TestStreamingEndpoint_AbortsAfterPartialReply(t *testing.T) {
	store := memory.New()
	router := llm.NewRouter("flaky")
	router.RegisterProvider(interruptedProvider{})
	svc := backend.NewService(store.Users(), store.Conversations(), store.Messages(), router)

	srv := httptest.NewServer(newTestRouter(t, Dependencies{Service: svc}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/streaming", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.Equal(t, "Hi", string(body))
}

func TestStreamingEndpoint_NoProvider(t *testing.T) {
	store := memory.New()
	svc := backend.NewService(store.Users(), store.Conversations(), store.Messages(), llm.NewRouter("missing"))

	srv := httptest.NewServer(newTestRouter(t, Dependencies{Service: svc}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/streaming", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestMessageEndpoint(t *testing.T) {
	h := newTestRouter(t, Dependencies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/message?msg=%E4%BD%A0%E5%A5%BD+world", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "You said: 你好 world", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/message", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/message?msg=", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageEndpoint_FailureHidesPartialReply(t *testing.T) {
	store := memory.New()
	router := llm.NewRouter("flaky")
	router.RegisterProvider(interruptedProvider{})
	svc := backend.NewService(store.Users(), store.Conversations(), store.Messages(), router)
	h := newTestRouter(t, Dependencies{Service: svc})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/message?msg=hello", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Hi")
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, 0, time.Time{}, f.err
	}
	remaining := 0
	if f.allowed {
		remaining = 3
	}
	return f.allowed, remaining, time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC), nil
}

func TestStreamingEndpoint_RateLimited(t *testing.T) {
	limiter := &fakeLimiter{}
	h := newTestRouter(t, Dependencies{Limiter: limiter})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/streaming", strings.NewReader("hello"))
	req.RemoteAddr = "10.0.0.7:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2024-05-01T10:01:00Z", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"10.0.0.7"}, limiter.keys)

	limiter.allowed = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/streaming", strings.NewReader("hello")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "You said: hello", rec.Body.String())

	limiter.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/streaming", strings.NewReader("hello")))
	assert.Equal(t, http.StatusOK, rec.Code)
}
