package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/streamchat/internal/domain"
)

func newTestGateway(t *testing.T, r chi.Router) *Gateway {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), WithRetries(2, time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestGateway_Login(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/users/login", func(w http.ResponseWriter, req *http.Request) {
		var in domain.UserLogin
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		if in.Password != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "用户名或密码错误"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    map[string]any{"id": 7, "username": in.Username, "email": "a@b.c"},
		})
	})
	g := newTestGateway(t, r)

	user, err := g.Login(context.Background(), domain.UserLogin{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, domain.ID("7"), user.ID)
	assert.Equal(t, "alice", user.Username)

	_, err = g.Login(context.Background(), domain.UserLogin{Username: "alice", Password: "wrong"})
	var berr *domain.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "用户名或密码错误", berr.Message)
	assert.Equal(t, http.StatusBadRequest, berr.Status)
}

func TestGateway_ValidatesInput(t *testing.T) {
	g := New("http://127.0.0.1:0", nil)

	_, err := g.Register(context.Background(), domain.UserCreate{Username: "bob", Password: "pw", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorContains(t, err, "email")

	_, err = g.CreateConversation(context.Background(), "", "title")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGateway_ConversationLifecycle(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/users/{userId}/conversations", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "1", chi.URLParam(req, "userId"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"conversations": []map[string]any{{"id": 10, "title": "默认对话"}, {"id": "11", "title": "second"}},
		})
	})
	r.Post("/api/users/{userId}/conversations", func(w http.ResponseWriter, req *http.Request) {
		var in map[string]string
		json.NewDecoder(req.Body).Decode(&in)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"conversation": map[string]any{"id": 12, "title": in["title"]},
		})
	})
	r.Delete("/api/users/conversations/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "对话删除成功"})
	})
	g := newTestGateway(t, r)
	ctx := context.Background()

	convs, err := g.ListConversations(ctx, "1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, domain.ID("10"), convs[0].ID)
	assert.Equal(t, domain.ID("11"), convs[1].ID)

	conv, err := g.CreateConversation(ctx, "1", "new chat")
	require.NoError(t, err)
	assert.Equal(t, "new chat", conv.Title)

	require.NoError(t, g.DeleteConversation(ctx, "12"))
}

func TestGateway_Messages(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/users/conversations/{id}/messages", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"messages": []map[string]any{
				{"id": 1, "content": "hello", "senderType": "USER", "createdAt": "2024-05-01T10:00:00.123"},
				{"id": 2, "content": "Hi there", "senderType": "AI", "createdAt": "2024-05-01T10:00:01Z"},
			},
		})
	})
	r.Post("/api/users/conversations/{id}/messages", func(w http.ResponseWriter, req *http.Request) {
		var in domain.MessageCreate
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": map[string]any{"id": 3, "content": in.Content, "senderType": in.SenderType},
		})
	})
	g := newTestGateway(t, r)
	ctx := context.Background()

	msgs, err := g.ListMessages(ctx, "5")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderUser, msgs[0].SenderType)
	assert.Equal(t, 2024, msgs[0].CreatedAt.Year())
	assert.Equal(t, "Hi there", msgs[1].ToMessage().Text)

	saved, err := g.SaveMessage(ctx, "5", domain.MessageCreate{UserID: "1", Content: "Hi there", SenderType: domain.SenderAssistant})
	require.NoError(t, err)
	assert.Equal(t, domain.ID("3"), saved.ID)
	assert.Equal(t, domain.SenderAssistant, saved.SenderType)

	_, err = g.SaveMessage(ctx, "5", domain.MessageCreate{UserID: "1", Content: "x", SenderType: "BOT"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGateway_EmptyAndMalformedBodies(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/users/login", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/users/register", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	})
	g := newTestGateway(t, r)
	ctx := context.Background()

	_, err := g.Login(ctx, domain.UserLogin{Username: "a", Password: "b"})
	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransportEmptyBody, terr.Kind)

	_, err = g.Register(ctx, domain.UserCreate{Username: "a", Password: "b", Email: "a@b.c"})
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransportMalformed, terr.Kind)
}

func TestGateway_RetriesTransportFailuresOnReads(t *testing.T) {
	var calls atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/users/conversations/{id}/messages", func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": []any{}})
	})
	g := newTestGateway(t, r)

	msgs, err := g.ListMessages(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGateway_DoesNotRetryBackendFailures(t *testing.T) {
	var calls atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/users/{userId}/conversations", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "用户不存在"})
	})
	g := newTestGateway(t, r)

	_, err := g.ListConversations(context.Background(), "9")
	assert.True(t, domain.IsBackend(err))
	assert.Equal(t, "用户不存在", domain.Describe(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := New(url, nil, WithRetries(0, time.Millisecond))
	_, err := g.ListMessages(context.Background(), "1")

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransportConnect, terr.Kind)
}
