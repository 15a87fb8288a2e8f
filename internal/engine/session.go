package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a TestSession (spec.md §3): it owns its sample buffers
// exclusively, and is mutated only by its own Orchestrator goroutine tree.
// Probers and Drivers never reach back into a Session directly — they push
// samples through OnSample/OnInterval, which are the only methods called
// from a stage's own goroutine, preserving the "one appender per stage"
// invariant (spec.md §5).
type Session struct {
	ID         string
	ServerID   string
	ClientAddr string
	StartedAt  time.Time
	Duration   time.Duration
	Flags      Flags

	mu        sync.Mutex
	stage     Stage
	samples   map[Stage][]LatencySample
	intervals map[Direction][]ThroughputInterval
	bytesUsed int64
}

// newSession allocates a Session in the Initializing stage.
func newSession(serverID, clientAddr string, cfg StartConfig) *Session {
	return &Session{
		ID:         uuid.New().String(),
		ServerID:   serverID,
		ClientAddr: clientAddr,
		StartedAt:  time.Now(),
		Duration:   cfg.Duration,
		Flags:      cfg.Flags,
		stage:      StageInitializing,
		samples:    make(map[Stage][]LatencySample),
		intervals:  make(map[Direction][]ThroughputInterval),
	}
}

// Stage returns the session's current stage. Stage transitions are
// monotonic: once advanced, a session never moves backward (except into
// Failed, which is terminal).
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// OnSample records a LatencySample produced by the Latency Prober. Only the
// goroutine driving the active stage may call this for that stage.
func (s *Session) OnSample(sample LatencySample) {
	s.mu.Lock()
	s.samples[sample.Stage] = append(s.samples[sample.Stage], sample)
	s.mu.Unlock()
}

// OnInterval records a ThroughputInterval produced by the Throughput
// Driver and adds its bytes to the BytesUsed total. The per-session byte cap
// is enforced by the Driver's byteBudget, not here.
func (s *Session) OnInterval(iv ThroughputInterval) {
	s.mu.Lock()
	s.intervals[iv.Direction] = append(s.intervals[iv.Direction], iv)
	s.bytesUsed += iv.Bytes
	s.mu.Unlock()
}

// BytesUsed returns the total bytes moved so far across both directions.
func (s *Session) BytesUsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesUsed
}

// SamplesFor returns a copy of the recorded samples for a stage.
func (s *Session) SamplesFor(stage Stage) []LatencySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LatencySample, len(s.samples[stage]))
	copy(out, s.samples[stage])
	return out
}

// IntervalsFor returns a copy of the recorded intervals for a direction.
func (s *Session) IntervalsFor(dir Direction) []ThroughputInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThroughputInterval, len(s.intervals[dir]))
	copy(out, s.intervals[dir])
	return out
}
