package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
	"github.com/ozarkconnect/linkpulse/internal/codec"
	"github.com/ozarkconnect/linkpulse/internal/engine"
	"github.com/ozarkconnect/linkpulse/internal/insights"
	"github.com/ozarkconnect/linkpulse/internal/store"
)

func TestRouterStartThenWebsocketRunsFullTest(t *testing.T) {
	mem := store.NewMemoryStore()
	orch := engine.NewOrchestrator("srv-1", 5, 10<<20, mem, insights.Noop{}, nil, nil)
	registry := NewRegistry()
	handlers := rest.NewHandlers(orch, registry, mem, mem, []rest.ServerDescriptor{{ID: "srv-1"}}, "test", nil)

	router := NewRouter(handlers, orch, registry, nil, nil, []string{"*"})
	server := httptest.NewServer(router)
	defer server.Close()

	startBody, _ := json.Marshal(rest.StartRequest{DurationMs: int(engine.MinDuration.Milliseconds())})
	resp, err := http.Post(server.URL+"/api/test/enhanced/start", "application/json", bytes.NewReader(startBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var start rest.StartResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&start))
	require.NotEmpty(t, start.TestID)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + start.WebsocketURL
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Drive the upload stage and respond to pings so the test can complete
	// within the test's own timeout.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(engine.MinDuration + 5*time.Second)
		for time.Now().Before(deadline) {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := codec.Decode(codec.ModeBinary, data)
			if err != nil {
				continue
			}
			switch f := frame.(type) {
			case codec.PingFrame:
				pong, _ := codec.Encode(codec.ModeBinary, codec.PongFrame{Token: f.Token})
				conn.WriteMessage(msgType, pong)
			case codec.BeginUploadFrame:
				payload := make([]byte, 4096)
				data, _ := codec.Encode(codec.ModeBinary, codec.DataFrame{Payload: payload})
				for i := 0; i < 50; i++ {
					conn.WriteMessage(msgType, data)
					time.Sleep(20 * time.Millisecond)
				}
			case codec.ResultsFrame:
				assert.NotZero(t, f.Result.DownMbpsX10)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(engine.MinDuration + 10*time.Second):
		t.Fatal("test did not complete in time")
	}

	result, ok, err := mem.Fetch(nil, start.TestID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, start.TestID, result.Basic.TestID)
}

func TestRouterWebsocketRejectsUnknownSession(t *testing.T) {
	mem := store.NewMemoryStore()
	orch := engine.NewOrchestrator("srv-1", 5, 10<<20, mem, insights.Noop{}, nil, nil)
	registry := NewRegistry()
	handlers := rest.NewHandlers(orch, registry, mem, mem, nil, "test", nil)

	router := NewRouter(handlers, orch, registry, nil, nil, []string{"*"})
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/enhanced/does-not-exist"
	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpointReportsOK(t *testing.T) {
	mem := store.NewMemoryStore()
	orch := engine.NewOrchestrator("srv-1", 5, 10<<20, mem, insights.Noop{}, nil, nil)
	registry := NewRegistry()
	handlers := rest.NewHandlers(orch, registry, mem, mem, nil, "test", nil)

	router := NewRouter(handlers, orch, registry, nil, nil, []string{"*"})
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
