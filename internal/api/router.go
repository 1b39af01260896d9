package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rrens/streamchat/internal/api/handler"
	customMiddleware "github.com/Rrens/streamchat/internal/api/middleware"
	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/config"
)

// Dependencies are the collaborators the router wires into handlers
type Dependencies struct {
	Service *backend.Service
	// DB backs the readiness probe; nil for the in-memory store
	DB handler.Pinger
	// Limiter throttles the streaming endpoint; nil disables limiting
	Limiter customMiddleware.Limiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	userHandler := handler.NewUserHandler(deps.Service)
	conversationHandler := handler.NewConversationHandler(deps.Service)
	chatHandler := handler.NewChatHandler(deps.Service)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.DB))
		r.Get("/llm-providers", handler.ListLLMProviders(deps.Service))

		r.Route("/users", func(r chi.Router) {
			if cfg.Server.HandlerTimeout > 0 {
				r.Use(middleware.Timeout(cfg.Server.HandlerTimeout))
			}

			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)

			r.Get("/{userID}/conversations", conversationHandler.List)
			r.Post("/{userID}/conversations", conversationHandler.Create)

			r.Delete("/conversations/{conversationID}", conversationHandler.Delete)
			r.Get("/conversations/{conversationID}/messages", conversationHandler.Messages)
			r.Post("/conversations/{conversationID}/messages", conversationHandler.SaveMessage)
		})

		// Replies run as long as the model does, so no handler timeout here
		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
			}
			r.Get("/chat/message", chatHandler.Message)
			r.Post("/chat/streaming", chatHandler.Streaming)
		})
	})

	return r
}
