package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rrens/streamchat/internal/api/response"
	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/domain"
)

// ConversationHandler handles conversation and message endpoints
type ConversationHandler struct {
	svc *backend.Service
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(svc *backend.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type conversationCreate struct {
	Title string `json:"title" validate:"required,max=255"`
}

// List returns the conversations of the user in the path
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := domain.ID(chi.URLParam(r, "userID"))

	conversations, err := h.svc.ListConversations(r.Context(), userID)
	if err != nil {
		fail(w, r, "list conversations", err)
		return
	}

	response.OK(w, response.Fields{"conversations": conversations})
}

// Create creates a conversation for the user in the path
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := domain.ID(chi.URLParam(r, "userID"))

	var input conversationCreate
	if !decode(w, r, &input) {
		return
	}

	conv, err := h.svc.CreateConversation(r.Context(), userID, input.Title)
	if err != nil {
		fail(w, r, "create conversation", err)
		return
	}

	response.OK(w, response.Fields{"conversation": conv})
}

// Delete removes the conversation in the path
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "conversationID"))

	if err := h.svc.DeleteConversation(r.Context(), id); err != nil {
		fail(w, r, "delete conversation", err)
		return
	}

	response.Message(w, "对话删除成功")
}

// Messages returns the messages of the conversation in the path
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "conversationID"))

	messages, err := h.svc.ListMessages(r.Context(), id)
	if err != nil {
		fail(w, r, "list messages", err)
		return
	}

	response.OK(w, response.Fields{"messages": messages})
}

// SaveMessage appends a message to the conversation in the path
func (h *ConversationHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "conversationID"))

	var input domain.MessageCreate
	if !decode(w, r, &input) {
		return
	}

	msg, err := h.svc.SaveMessage(r.Context(), id, input)
	if err != nil {
		fail(w, r, "save message", err)
		return
	}

	response.OK(w, response.Fields{"message": msg})
}
