package handler

import (
	"net/http"

	"github.com/Rrens/streamchat/internal/api/response"
	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/domain"
)

// UserHandler handles registration and login
type UserHandler struct {
	svc *backend.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc *backend.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// Register handles user registration
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input domain.UserCreate
	if !decode(w, r, &input) {
		return
	}

	user, err := h.svc.Register(r.Context(), input)
	if err != nil {
		fail(w, r, "register", err)
		return
	}

	response.OK(w, response.Fields{"message": "注册成功", "user": user})
}

// Login handles user login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input domain.UserLogin
	if !decode(w, r, &input) {
		return
	}

	user, err := h.svc.Login(r.Context(), input)
	if err != nil {
		fail(w, r, "login", err)
		return
	}

	response.OK(w, response.Fields{"message": "登录成功", "user": user})
}
