package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ozarkconnect/linkpulse/internal/engine"
	"github.com/ozarkconnect/linkpulse/internal/logging"
	"github.com/ozarkconnect/linkpulse/internal/store"
)

// SessionRegistry hands a just-started Session off to whatever accepts the
// client's websocket connection. internal/web.Registry satisfies this.
type SessionRegistry interface {
	Put(session *engine.Session, onExpire func(*engine.Session))
}

// Handlers implements the REST surface of spec.md §6. It never runs a test
// itself — Start only admits a session and returns its websocket URL; the
// Orchestrator actually runs the state machine once the client connects to
// /ws/enhanced/{id} (internal/web.Router).
type Handlers struct {
	orchestrator *engine.Orchestrator
	registry     SessionRegistry
	results      engine.Store
	history      store.History
	servers      []ServerDescriptor
	version      string
	startedAt    time.Time
	logger       logging.Logger
}

// NewHandlers wires Handlers' collaborators.
func NewHandlers(orchestrator *engine.Orchestrator, registry SessionRegistry, results engine.Store, history store.History, servers []ServerDescriptor, version string, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handlers{
		orchestrator: orchestrator,
		registry:     registry,
		results:      results,
		history:      history,
		servers:      servers,
		version:      version,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// StartTest handles POST /api/test/enhanced/start.
func (h *Handlers) StartTest(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload", "INVALID_BODY")
		return
	}

	session, err := h.orchestrator.Start(engine.StartConfig{
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		Flags: engine.Flags{
			AIInsights: req.IncludeAIInsights,
			Binary:     req.UseBinaryProtocol,
		},
		ClientAddr: clientAddr(r),
	})
	if err != nil {
		switch engine.KindOf(err) {
		case engine.InvalidConfig:
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CONFIG")
		case engine.ResourceExhausted:
			writeError(w, http.StatusServiceUnavailable, err.Error(), "CAPACITY_EXCEEDED")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to start test", "START_FAILED")
		}
		return
	}

	h.registry.Put(session, func(abandoned *engine.Session) {
		h.orchestrator.Abandon(abandoned)
		h.logger.Warn("test session abandoned, no websocket connected", "test_id", abandoned.ID)
	})

	writeJSON(w, http.StatusOK, StartResponse{
		TestID:       session.ID,
		ServerID:     session.ServerID,
		WebsocketURL: "/ws/enhanced/" + session.ID,
	})
}

// GetResult handles GET /api/test/enhanced/{id}.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, ok, err := h.results.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch result", "FETCH_FAILED")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Test result not found", "NOT_FOUND")
		return
	}

	dto := toTestResultDTO(*result)
	if r.URL.Query().Get("include_ai") == "false" {
		dto.AIInsights = nil
	}
	writeJSON(w, http.StatusOK, dto)
}

// History handles GET /api/test/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	basics, err := h.history.Recent(r.Context(), store.MaxHistoryResults)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch history", "HISTORY_FAILED")
		return
	}

	out := make([]BasicResultDTO, len(basics))
	for i, b := range basics {
		out[i] = BasicResultDTO{
			TestID:      b.TestID,
			DownMbps:    b.DownMbps,
			UpMbps:      b.UpMbps,
			LatencyMs:   b.LatencyMs,
			JitterMs:    b.JitterMs,
			DurationSec: b.DurationSec,
			Timestamp:   b.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Servers handles GET /api/servers.
func (h *Handlers) Servers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.servers)
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		ActiveTests:   h.orchestrator.ActiveSessions(),
	})
}

func toTestResultDTO(r engine.TestResult) TestResultDTO {
	dto := TestResultDTO{
		TestID:      r.Basic.TestID,
		ServerID:    r.Basic.ServerID,
		DownMbps:    r.Basic.DownMbps,
		UpMbps:      r.Basic.UpMbps,
		LatencyMs:   r.Basic.LatencyMs,
		JitterMs:    r.Basic.JitterMs,
		DurationSec: r.Basic.DurationSec,
		Timestamp:   r.Basic.Timestamp,
	}

	if r.LoadedLatency != nil {
		dto.LoadedLatency = &LoadedLatencyDTO{
			IdleAvgMs:        r.LoadedLatency.IdleAvgMs,
			DownloadAvgMs:    r.LoadedLatency.DownloadAvgMs,
			UploadAvgMs:      r.LoadedLatency.UploadAvgMs,
			BufferbloatGrade: r.LoadedLatency.BufferbloatGrade,
			Notes:            r.LoadedLatency.Notes,
		}
	}

	if r.UseCaseScores != nil {
		s := r.UseCaseScores
		dto.UseCaseScores = &UseCaseScoresDTO{
			Gaming:            ScoreDTO{Score: s.Gaming.Score, Grade: s.Gaming.Grade},
			Streaming:         ScoreDTO{Score: s.Streaming.Score, Grade: s.Streaming.Grade},
			VideoConferencing: ScoreDTO{Score: s.VideoConferencing.Score, Grade: s.VideoConferencing.Grade},
			Browsing:          ScoreDTO{Score: s.Browsing.Score, Grade: s.Browsing.Grade},
			Overall:           s.Overall,
			OverallGrade:      s.OverallGrade,
			PacketLossAssumed: s.PacketLossAssumed,
		}
	}

	if r.AIInsights != nil {
		dto.AIInsights = &r.AIInsights.Summary
	}

	return dto
}

func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}
