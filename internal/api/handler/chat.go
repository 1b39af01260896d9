package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/backend"
)

// maxPromptBytes bounds the streaming request body
const maxPromptBytes = 64 << 10

// ChatHandler streams generated replies
type ChatHandler struct {
	svc *backend.Service
}

// NewChatHandler creates a new chat handler
func NewChatHandler(svc *backend.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Streaming reads a plain-text prompt and writes the reply as a chunked
// text/plain body, flushing after every piece. The body ends when the reply
// is complete; a failure after the first piece aborts the connection so the
// client can tell it apart from a finished reply.
func (h *ChatHandler) Streaming(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPromptBytes))
	if err != nil {
		http.Error(w, "无效的请求体", http.StatusBadRequest)
		return
	}

	rc := http.NewResponseController(w)
	started := false

	err = h.svc.StreamReply(r.Context(), string(body), func(text string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		return rc.Flush()
	})

	switch {
	case err == nil:
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
	case !started && errors.Is(err, backend.ErrEmptyPrompt):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case !started:
		log.Error().Err(err).Msg("reply generation failed")
		http.Error(w, msgInternal, http.StatusBadGateway)
	default:
		if r.Context().Err() == nil {
			log.Error().Err(err).Msg("reply stream interrupted")
		}
		panic(http.ErrAbortHandler)
	}
}

// Message answers the msg query parameter with the whole reply as plain text
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("msg") {
		http.Error(w, "缺少参数 msg", http.StatusBadRequest)
		return
	}

	answer, err := h.svc.Reply(r.Context(), query.Get("msg"))
	switch {
	case errors.Is(err, backend.ErrEmptyPrompt):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Msg("reply generation failed")
		http.Error(w, msgInternal, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, answer)
}
