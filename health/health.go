// Package health serves the process liveness and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telegram-store-bot/logging"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type status struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewRouter serves GET /healthz, which pings db, and GET /metrics when
// metrics is non-nil.
func NewRouter(db Pinger, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logging.FromContext(ctx).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, status{Status: "unavailable", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, status{Status: "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
