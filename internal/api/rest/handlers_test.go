package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozarkconnect/linkpulse/internal/engine"
	"github.com/ozarkconnect/linkpulse/internal/insights"
	"github.com/ozarkconnect/linkpulse/internal/store"
)

type fakeRegistry struct {
	put *engine.Session
}

func (f *fakeRegistry) Put(session *engine.Session, onExpire func(*engine.Session)) {
	f.put = session
}

func newTestHandlers() (*Handlers, *store.MemoryStore, *engine.Orchestrator) {
	mem := store.NewMemoryStore()
	orch := engine.NewOrchestrator("srv-1", 2, 1<<20, mem, insights.Noop{}, nil, nil)
	h := NewHandlers(orch, &fakeRegistry{}, mem, mem, []ServerDescriptor{{ID: "srv-1", Name: "Test Server"}}, "test", nil)
	return h, mem, orch
}

func TestStartTestAcceptsValidDuration(t *testing.T) {
	h, _, _ := newTestHandlers()

	body, _ := json.Marshal(StartRequest{DurationMs: 5000})
	req := httptest.NewRequest(http.MethodPost, "/api/test/enhanced/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StartTest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TestID)
	assert.Equal(t, "srv-1", resp.ServerID)
	assert.Contains(t, resp.WebsocketURL, resp.TestID)
}

func TestStartTestRejectsOutOfRangeDuration(t *testing.T) {
	h, _, _ := newTestHandlers()

	body, _ := json.Marshal(StartRequest{DurationMs: 100})
	req := httptest.NewRequest(http.MethodPost, "/api/test/enhanced/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StartTest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTestReportsCapacityExceeded(t *testing.T) {
	h, _, _ := newTestHandlers()
	body, _ := json.Marshal(StartRequest{DurationMs: 5000})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/test/enhanced/start", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.StartTest(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/test/enhanced/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.StartTest(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetResultNotFound(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/test/enhanced/nope", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "nope"})
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResultFound(t *testing.T) {
	h, mem, _ := newTestHandlers()
	_ = mem.Store(nil, engine.TestResult{Basic: engine.BasicResult{TestID: "abc", DownMbps: 50}})

	req := httptest.NewRequest(http.MethodGet, "/api/test/enhanced/abc", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto TestResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 50.0, dto.DownMbps)
}

func TestGetResultOmitsInsightsWhenExcluded(t *testing.T) {
	h, mem, _ := newTestHandlers()
	summary := "solid connection"
	_ = mem.Store(nil, engine.TestResult{
		Basic:      engine.BasicResult{TestID: "with-ai"},
		AIInsights: &insights.AIInsights{Summary: summary},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test/enhanced/with-ai?include_ai=false", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "with-ai"})
	rec := httptest.NewRecorder()

	h.GetResult(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto TestResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Nil(t, dto.AIInsights)
}

func TestHistoryReturnsStoredResults(t *testing.T) {
	h, mem, _ := newTestHandlers()
	_ = mem.Store(nil, engine.TestResult{Basic: engine.BasicResult{TestID: "h1"}})

	req := httptest.NewRequest(http.MethodGet, "/api/test/history", nil)
	rec := httptest.NewRecorder()

	h.History(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []BasicResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)
}

func TestServersReturnsStaticCatalog(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	rec := httptest.NewRecorder()

	h.Servers(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []ServerDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "srv-1", out[0].ID)
}

func TestHealthReportsActiveTests(t *testing.T) {
	h, _, _ := newTestHandlers()

	body, _ := json.Marshal(StartRequest{DurationMs: 5000})
	req := httptest.NewRequest(http.MethodPost, "/api/test/enhanced/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.StartTest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	healthReq := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	healthRec := httptest.NewRecorder()
	h.Health(healthRec, healthReq)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(healthRec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ActiveTests)
	assert.Equal(t, "ok", resp.Status)
}
