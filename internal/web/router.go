package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
	"github.com/ozarkconnect/linkpulse/internal/api/rest/middleware"
	"github.com/ozarkconnect/linkpulse/internal/engine"
	"github.com/ozarkconnect/linkpulse/internal/logging"
)

// NewRouter wires the full HTTP surface (spec.md §6): the REST endpoints
// behind the shared middleware chain, and the /ws/enhanced/{id} upgrade
// that claims a pending session from registry and runs it to completion.
func NewRouter(handlers *rest.Handlers, orchestrator *engine.Orchestrator, registry *Registry, metrics middleware.MetricsCollector, logger logging.Logger, corsOrigins []string) *mux.Router {
	if logger == nil {
		logger = logging.Nop{}
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	if metrics != nil {
		router.Use(middleware.Metrics(metrics))
	}
	router.Use(middleware.ErrorRecovery)
	router.Use(middleware.RateLimiting)
	router.Use(middleware.CORS(corsOrigins))

	router.HandleFunc("/api/test/enhanced/start", handlers.StartTest).Methods(http.MethodPost)
	router.HandleFunc("/api/test/enhanced/{id}", handlers.GetResult).Methods(http.MethodGet)
	router.HandleFunc("/api/test/history", handlers.History).Methods(http.MethodGet)
	router.HandleFunc("/api/servers", handlers.Servers).Methods(http.MethodGet)
	router.HandleFunc("/api/health", handlers.Health).Methods(http.MethodGet)

	router.HandleFunc("/ws/enhanced/{id}", wsHandler(orchestrator, registry, logger))

	return router
}

// wsHandler upgrades the connection for a pending session and drives it to
// completion. A request for an id with no pending session (unknown, already
// claimed, or expired) is rejected with 404 before the upgrade.
func wsHandler(orchestrator *engine.Orchestrator, registry *Registry, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		session, ok := registry.Take(id)
		if !ok {
			http.Error(w, "unknown or expired test session", http.StatusNotFound)
			return
		}

		conn, err := Upgrade(w, r, logger)
		if err != nil {
			logger.Error("websocket upgrade failed", "test_id", id, "error", err)
			orchestrator.Abandon(session)
			return
		}

		stop := make(chan struct{})
		go conn.ReadLoop()
		go conn.Keepalive(stop)
		defer close(stop)
		defer conn.Close()

		ctx, cancel := context.WithTimeout(r.Context(), session.Duration+2*time.Minute)
		defer cancel()

		if _, err := orchestrator.Run(ctx, session, conn); err != nil {
			logger.Warn("test session ended with error", "test_id", id, "error", err)
		}
	}
}
