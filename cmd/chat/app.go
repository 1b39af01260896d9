package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/gateway"
	"github.com/Rrens/streamchat/internal/i18n"
	"github.com/Rrens/streamchat/internal/logging"
	"github.com/Rrens/streamchat/internal/repository/redis"
	"github.com/Rrens/streamchat/internal/repository/sqlite"
	"github.com/Rrens/streamchat/internal/service"
	"github.com/Rrens/streamchat/internal/store"
	"github.com/Rrens/streamchat/internal/stream"
	"github.com/Rrens/streamchat/internal/transport"
)

// app holds the wired client core for one command invocation
type app struct {
	cfg           *config.Config
	tr            *i18n.Translator
	store         *store.Store
	auth          *service.AuthService
	conversations *service.ConversationService
	chat          *service.ChatService
	render        *renderer

	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logCloser)

	sessions, err := a.openSessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.tr = i18n.New(cfg.Client.Locale)
	a.store = store.New()
	a.render = newRenderer(out, a.store)

	gw := gateway.New(
		cfg.Client.BaseURL,
		&http.Client{Timeout: cfg.Client.RequestTimeout},
		gateway.WithRetries(uint64(cfg.Client.SaveRetries), 200*time.Millisecond),
	)

	// No overall timeout: replies are unbounded and idle time is bounded per fragment
	streams := transport.NewClient(
		cfg.Client.BaseURL,
		&http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Client.RequestTimeout,
		}},
		transport.WithIdleTimeout(cfg.Stream.IdleTimeout),
		transport.WithReadBuffer(cfg.Stream.ReadBuffer),
		transport.WithStrictUTF8(cfg.Stream.StrictUTF8),
	)
	streamer := service.StreamerFunc(func(ctx context.Context, message string) (stream.Source, error) {
		return streams.Open(ctx, message)
	})

	a.chat = service.NewChatService(gw, streamer, a.store, a.render, a.tr, service.ChatOptions{
		SaveRetries: uint64(cfg.Client.SaveRetries),
	})
	a.conversations = service.NewConversationService(gw, a.store, a.chat, a.tr)
	a.auth = service.NewAuthService(gw, sessions)

	return a, nil
}

func (a *app) openSessionStore(ctx context.Context) (domain.SessionStore, error) {
	switch a.cfg.Session.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return redis.NewSessionStore(client, a.cfg.Session.Key), nil
	default:
		sessions, err := sqlite.OpenSessionStore(ctx, a.cfg.Session.SQLitePath, a.cfg.Session.Key)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sessions)
		return sessions, nil
	}
}

// requireUser restores the logged-in user and loads their conversations
func (a *app) requireUser(ctx context.Context) (*domain.User, error) {
	user, err := a.auth.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("not logged in, run `chat login` first")
	}

	if err := a.conversations.Load(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to load conversations: %s", a.tr.Describe(err))
	}
	if active, ok := a.conversations.Active(); ok {
		a.render.SetActive(active.ID)
	}
	return user, nil
}

// Close releases the session store and the log file
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}
