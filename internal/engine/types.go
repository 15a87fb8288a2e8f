package engine

import (
	"time"

	"github.com/ozarkconnect/linkpulse/internal/insights"
)

// Stage is a named interval in the test state machine (spec.md §4.1). It
// progresses linearly with no back-edges, except that any stage may
// transition directly to Failed.
type Stage uint8

const (
	StageInitializing Stage = iota
	StageIdleLatency
	StageDownload
	StageUpload
	StageFinalizing
	StageComplete
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StageIdleLatency:
		return "idle_latency"
	case StageDownload:
		return "download"
	case StageUpload:
		return "upload"
	case StageFinalizing:
		return "finalizing"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Direction distinguishes the two Throughput Driver instances a test runs.
type Direction uint8

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// LatencySample is one round-trip measurement tagged with the stage it was
// taken in (spec.md §3).
type LatencySample struct {
	RoundTripMs float64
	At          time.Time
	Stage       Stage
}

// ThroughputInterval is one ~100ms bulk-transfer snapshot (spec.md §3).
type ThroughputInterval struct {
	Bytes     int64
	Duration  time.Duration
	Direction Direction
}

// Flags are the per-test feature flags carried in TestSession and in the
// wire StartTest message.
type Flags struct {
	AIInsights bool
	Binary     bool
}

// StartConfig is the input to Orchestrator.Start.
type StartConfig struct {
	Duration time.Duration
	Flags    Flags
	ClientAddr string
}

// BasicResult is the always-present core of a TestResult (spec.md §3).
type BasicResult struct {
	TestID      string
	ServerID    string
	DownMbps    float64
	UpMbps      float64
	LatencyMs   float64
	JitterMs    float64
	DurationSec float64
	ClientAddr  string
	Timestamp   time.Time
}

// LoadedLatencyResult is the three-stage latency/bufferbloat derivation
// (spec.md §3, §4.1, §4.3). Pointer fields are nil when the corresponding
// stage had fewer than 3 samples ("undefined" per §4.1).
type LoadedLatencyResult struct {
	IdleAvgMs     *float64
	DownloadAvgMs *float64
	UploadAvgMs   *float64

	IdleRPM     int
	DownloadRPM int
	UploadRPM   int

	DownloadBufferbloatRatio *float64
	UploadBufferbloatRatio   *float64
	BufferbloatGrade         string // "A+".."F" or "Unknown"

	JitterMs         *float64 // idle-stage jitter, the figure scoring consumes
	DownloadJitterMs *float64 // supplemental: loaded-stage jitter, diagnostic only
	UploadJitterMs   *float64

	Notes []string // e.g. ProbeDegraded warnings, per §7
}

// ScoreResult is one use-case's score and textual grade.
type ScoreResult struct {
	Score float64
	Grade string
}

// UseCaseScores is the graded output of the scoring model (spec.md §4.3).
type UseCaseScores struct {
	Gaming             ScoreResult
	Streaming          ScoreResult
	VideoConferencing  ScoreResult
	Browsing           ScoreResult
	Overall            float64
	OverallGrade       string
	PacketLossAssumed  bool // true when packet loss was absent and awarded in full
}

// TestResult is the immutable record produced at test end and handed to the
// persistence collaborator (spec.md §3, §6).
type TestResult struct {
	Basic          BasicResult
	LoadedLatency  *LoadedLatencyResult
	UseCaseScores  *UseCaseScores
	AIInsights     *insights.AIInsights // nil when omitted or the collaborator failed
}
