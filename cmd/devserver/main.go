package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/api"
	"github.com/Rrens/streamchat/internal/backend"
	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/logging"
	"github.com/Rrens/streamchat/internal/repository/memory"
	"github.com/Rrens/streamchat/internal/repository/postgres"
	"github.com/Rrens/streamchat/internal/repository/redis"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting streamchat development backend")

	ctx := context.Background()
	deps := api.Dependencies{}

	var (
		users         domain.UserRepository
		conversations domain.ConversationRepository
		messages      domain.MessageRepository
	)
	if cfg.Database.Enabled() {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		users = postgres.NewUserRepository(db.Pool)
		conversations = postgres.NewConversationRepository(db.Pool)
		messages = postgres.NewMessageRepository(db.Pool)
		deps.DB = db
		log.Info().Str("host", cfg.Database.Host).Msg("Using PostgreSQL store")
	} else {
		store := memory.New()
		users, conversations, messages = store.Users(), store.Conversations(), store.Messages()
		log.Warn().Msg("No database configured, using in-memory store")
	}

	if cfg.Server.StreamRateLimit > 0 {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		deps.Limiter = redis.NewRateLimiter(redisClient, cfg.Server.StreamRateLimit, cfg.Server.StreamBurst)
		log.Info().Int("per_minute", cfg.Server.StreamRateLimit).Msg("Streaming rate limit enabled")
	}

	deps.Service = backend.NewService(users, conversations, messages, newLLMRouter(cfg.LLM))

	router := api.NewRouter(cfg, deps)

	// Create HTTP server. No WriteTimeout: streamed replies are unbounded.
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
