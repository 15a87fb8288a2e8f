package engine

import (
	"context"
	"time"
)

// Store is the persistence collaborator contract (spec.md §6): store on
// completion, fetch for the HTTP GET surface. The core never depends on a
// concrete database — internal/store supplies in-memory, Redis, and
// Postgres-backed implementations, any of which satisfies this interface.
type Store interface {
	Store(ctx context.Context, result TestResult) error
	Fetch(ctx context.Context, id string) (*TestResult, bool, error)
}

// MetricsRecorder is the narrow seam the Orchestrator reports through,
// implemented by internal/monitoring over Prometheus collectors. Kept here
// as an interface so engine tests can substitute a no-op double (spec.md §9
// "tests should substitute in-memory doubles").
type MetricsRecorder interface {
	TestStarted()
	TestFinished(stage Stage, err error, elapsed time.Duration)
	StageDuration(stage Stage, elapsed time.Duration)
}

// NopMetrics discards everything; used where no monitoring backend is wired.
type NopMetrics struct{}

func (NopMetrics) TestStarted()                                        {}
func (NopMetrics) TestFinished(Stage, error, time.Duration)            {}
func (NopMetrics) StageDuration(Stage, time.Duration)                  {}

// Tracer is the narrow span-emitting collaborator the Orchestrator reports
// through; internal/monitoring adapts OpenTelemetry behind it. StartSpan
// returns a derived context (carrying the new span) and a function that
// ends the span, recording err on it if non-nil. Unset by default, via
// Orchestrator.SetTracer, so untraced deployments and tests pay no OTel cost.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(err error))
}
