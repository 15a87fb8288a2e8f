// Package rest implements the HTTP surface wrapping the measurement engine
// (spec.md §6): start/read test results, history, server catalog, health.
package rest

import "time"

// StartRequest is the body of POST /api/test/enhanced/start.
type StartRequest struct {
	IncludeAIInsights bool `json:"include_ai_insights"`
	UseBinaryProtocol bool `json:"use_binary_protocol"`
	DurationMs        int  `json:"duration_ms"`
}

// StartResponse is the success body of POST /api/test/enhanced/start.
type StartResponse struct {
	TestID       string `json:"test_id"`
	ServerID     string `json:"server_id"`
	WebsocketURL string `json:"websocket_url"`
}

// ErrorResponse is the body returned on any non-2xx response from this
// package's handlers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ServerDescriptor describes one measurement server in the static catalog
// returned by GET /api/servers.
type ServerDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	WebsocketURL string `json:"websocket_url"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveTests   int     `json:"active_tests"`
}

// ScoreDTO is the JSON projection of one use-case score.
type ScoreDTO struct {
	Score float64 `json:"score"`
	Grade string  `json:"grade"`
}

// UseCaseScoresDTO is the JSON projection of engine.UseCaseScores.
type UseCaseScoresDTO struct {
	Gaming            ScoreDTO `json:"gaming"`
	Streaming         ScoreDTO `json:"streaming"`
	VideoConferencing ScoreDTO `json:"video_conferencing"`
	Browsing          ScoreDTO `json:"browsing"`
	Overall           float64  `json:"overall"`
	OverallGrade      string   `json:"overall_grade"`
	PacketLossAssumed bool     `json:"packet_loss_assumed"`
}

// LoadedLatencyDTO is the JSON projection of engine.LoadedLatencyResult.
type LoadedLatencyDTO struct {
	IdleAvgMs        *float64 `json:"idle_avg_ms,omitempty"`
	DownloadAvgMs    *float64 `json:"download_avg_ms,omitempty"`
	UploadAvgMs      *float64 `json:"upload_avg_ms,omitempty"`
	BufferbloatGrade string   `json:"bufferbloat_grade"`
	Notes            []string `json:"notes,omitempty"`
}

// TestResultDTO is the JSON projection of engine.TestResult returned by
// GET /api/test/enhanced/{id}.
type TestResultDTO struct {
	TestID      string            `json:"test_id"`
	ServerID    string            `json:"server_id"`
	DownMbps    float64           `json:"down_mbps"`
	UpMbps      float64           `json:"up_mbps"`
	LatencyMs   float64           `json:"latency_ms"`
	JitterMs    float64           `json:"jitter_ms"`
	DurationSec float64           `json:"duration_sec"`
	Timestamp   time.Time         `json:"timestamp"`
	LoadedLatency *LoadedLatencyDTO `json:"loaded_latency,omitempty"`
	UseCaseScores *UseCaseScoresDTO `json:"use_case_scores,omitempty"`
	AIInsights    *string           `json:"ai_insights,omitempty"`
}

// BasicResultDTO is the JSON projection of engine.BasicResult used by
// GET /api/test/history.
type BasicResultDTO struct {
	TestID      string    `json:"test_id"`
	DownMbps    float64   `json:"down_mbps"`
	UpMbps      float64   `json:"up_mbps"`
	LatencyMs   float64   `json:"latency_ms"`
	JitterMs    float64   `json:"jitter_ms"`
	DurationSec float64   `json:"duration_sec"`
	Timestamp   time.Time `json:"timestamp"`
}
