// Package insights defines the AI-insights collaborator contract
// (spec.md §6): given a completed result, return human-readable advice or
// fail without ever blocking the test. The core depends only on the
// Analyzer interface; this package's HTTPAnalyzer is one implementation
// among many a deployment could substitute.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AIInsights is the value the collaborator returns on success. The core
// treats its contents as opaque text it never inspects or transforms.
type AIInsights struct {
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Input is everything the analyzer needs about a finished test. It
// deliberately excludes client address and test id: spec.md §6 forbids
// serializing either outside the process as part of this call.
type Input struct {
	DownMbps    float64 `json:"down_mbps"`
	UpMbps      float64 `json:"up_mbps"`
	LatencyMs   float64 `json:"latency_ms"`
	JitterMs    float64 `json:"jitter_ms"`
	BufferbloatGrade string `json:"bufferbloat_grade,omitempty"`
	OverallScore     float64 `json:"overall_score,omitempty"`
	OverallGrade     string  `json:"overall_grade,omitempty"`
}

// Analyzer is the narrow interface the engine depends on. Implementations
// must never block the test on failure — Analyze returning an error simply
// degrades the result by omitting insights (spec.md §7, InsightsUnavailable).
type Analyzer interface {
	Analyze(ctx context.Context, in Input, includeAI bool) (*AIInsights, error)
}

// Noop always reports insights unavailable without attempting a call; it is
// the default when no LINKPULSE_AI_INSIGHTS_URL is configured.
type Noop struct{}

func (Noop) Analyze(context.Context, Input, bool) (*AIInsights, error) {
	return nil, fmt.Errorf("insights: no analyzer configured")
}

// HTTPAnalyzer calls an external generative-analysis service over HTTP.
// Failures are returned as plain errors and never retried indefinitely —
// the caller (the Test Orchestrator's Finalizing stage) has its own bounded
// budget for this call.
type HTTPAnalyzer struct {
	URL    string
	Client *http.Client
}

// NewHTTPAnalyzer builds an HTTPAnalyzer with a bounded-timeout client.
func NewHTTPAnalyzer(url string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, in Input, includeAI bool) (*AIInsights, error) {
	if !includeAI {
		return nil, nil
	}
	if a.URL == "" {
		return nil, fmt.Errorf("insights: analyzer URL not configured")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("insights: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("insights: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("insights: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("insights: service returned HTTP %d", resp.StatusCode)
	}

	var out AIInsights
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("insights: decode response: %w", err)
	}
	if out.GeneratedAt.IsZero() {
		out.GeneratedAt = time.Now().UTC()
	}
	return &out, nil
}
