package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/streamchat/internal/api/response"
	"github.com/Rrens/streamchat/internal/backend"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, response.Fields{"status": "ok"})
}

// ReadyCheck returns readiness status including database connectivity. A nil
// db means the in-memory store, which is always ready.
func ReadyCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "database not ready")
				return
			}
		}

		response.OK(w, response.Fields{"status": "ready"})
	}
}

// ListLLMProviders returns the registered reply providers
func ListLLMProviders(svc *backend.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, response.Fields{"providers": svc.Providers()})
	}
}
