package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/codec"
	"github.com/ozarkconnect/linkpulse/internal/insights"
	"github.com/ozarkconnect/linkpulse/internal/logging"
)

// Duration bounds for a requested test (spec.md §3 TestSession invariants,
// §8 boundary behaviors: "Duration = 5000 ms (minimum) completes normally;
// 4999 ms is rejected").
const (
	MinDuration = 5 * time.Second
	MaxDuration = 30 * time.Second
)

// idleProbeCount and idleProbeCadence implement §4.1's IdleLatency stage:
// "20 probes at ≥50 ms spacing", landing the stage at ~2s.
const (
	idleProbeCount  = 20
	idleProbeCadence = 100 * time.Millisecond
)

// loadedProbeCadence is the Download/Upload stage probe rate (spec.md §4.1).
const loadedProbeCadence = 500 * time.Millisecond

// stageSoftDeadlineSlack bounds how long a stage may run past its nominal
// duration before being cut off (spec.md §5 "per-stage soft deadlines").
const stageSoftDeadlineSlack = 300 * time.Millisecond

// insightsCallBudget bounds the Finalizing stage's wait on the AI-insights
// collaborator; it never blocks the test past this (spec.md §6, §7
// InsightsUnavailable).
const insightsCallBudget = 3 * time.Second

// Orchestrator is the Test Orchestrator (spec.md §4.1). One instance serves
// every session on a server process; the concurrent-session cap is modeled
// as an explicit semaphore passed in at construction (spec.md §9 "Global
// state"), not a package-level value.
type Orchestrator struct {
	serverID      string
	sem           chan struct{}
	byteBudgetMax int64
	store         Store
	analyzer      insights.Analyzer
	metrics       MetricsRecorder
	logger        logging.Logger
	tracer        Tracer
}

// NewOrchestrator wires the Orchestrator's collaborators. maxConcurrent is
// the process-wide session cap (spec.md §5, default 50); byteBudgetMax is
// the per-session byte cap (default 500 MiB).
func NewOrchestrator(serverID string, maxConcurrent int, byteBudgetMax int64, store Store, analyzer insights.Analyzer, metrics MetricsRecorder, logger logging.Logger) *Orchestrator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Orchestrator{
		serverID:      serverID,
		sem:           make(chan struct{}, maxConcurrent),
		byteBudgetMax: byteBudgetMax,
		store:         store,
		analyzer:      analyzer,
		metrics:       metrics,
		logger:        logger,
	}
}

// ActiveSessions reports the number of sessions currently admitted under
// the concurrency cap, for GET /api/health's active_tests field.
func (o *Orchestrator) ActiveSessions() int {
	return len(o.sem)
}

// SetTracer wires a span-emitting collaborator. Left unset, the Orchestrator
// runs untraced; cmd/linkpulse-server calls this once at startup when a
// tracing backend is configured.
func (o *Orchestrator) SetTracer(t Tracer) {
	o.tracer = t
}

// startSpan opens a span if a tracer is wired, otherwise returns ctx
// unchanged and a no-op end function.
func (o *Orchestrator) startSpan(ctx context.Context, name string) (context.Context, func(error)) {
	if o.tracer == nil {
		return ctx, func(error) {}
	}
	return o.tracer.StartSpan(ctx, name)
}

// Abandon releases the concurrency-semaphore slot of a session that was
// admitted by Start but never run — the client requested a test and never
// opened the corresponding websocket (spec.md doesn't bound this, but an
// admitted slot must not leak forever).
func (o *Orchestrator) Abandon(session *Session) {
	session.setStage(StageFailed)
	<-o.sem
}

// Start validates config and admits a new session under the concurrency
// cap. Fails with *InvalidConfig* on an out-of-range duration, or
// *ResourceExhausted* if the cap is reached (spec.md §4.1).
func (o *Orchestrator) Start(cfg StartConfig) (*Session, error) {
	if cfg.Duration < MinDuration || cfg.Duration > MaxDuration {
		return nil, newErr(InvalidConfig, fmt.Sprintf("duration %s out of range [%s, %s]", cfg.Duration, MinDuration, MaxDuration), nil)
	}

	select {
	case o.sem <- struct{}{}:
	default:
		return nil, newErr(ResourceExhausted, "concurrent test cap reached", nil)
	}

	session := newSession(o.serverID, cfg.ClientAddr, cfg)
	o.metrics.TestStarted()
	return session, nil
}

// Run drives session's state machine to completion over sio, emitting
// frames as it goes. Exactly one of (TestResult, error) is returned; on
// error no result is persisted (spec.md §4.1, §7, §8).
func (o *Orchestrator) Run(ctx context.Context, session *Session, sio SessionIO) (result *TestResult, err error) {
	runStart := time.Now()
	defer func() { <-o.sem }()

	hardDeadline := 2 * (idleProbeCount*idleProbeCadence + 2*session.Duration)
	ctx, cancel := context.WithTimeout(ctx, hardDeadline)
	defer cancel()

	ctx, endSpan := o.startSpan(ctx, "test_session")
	defer func() { endSpan(err) }()

	result, err = o.run(ctx, session, sio)
	o.metrics.TestFinished(session.Stage(), err, time.Since(runStart))
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, session *Session, sio SessionIO) (*TestResult, error) {
	fail := func(kind Kind, msg string, cause error) (*TestResult, error) {
		session.setStage(StageFailed)
		_ = sio.Send(codec.ErrorFrame{Kind: string(kind), Message: msg})
		return nil, newErr(kind, msg, cause)
	}

	// Initializing
	session.setStage(StageInitializing)
	if err := sio.Send(codec.ProgressFrame{Stage: uint8(StageInitializing), Pct: 0}); err != nil {
		return fail(TransportLost, "transport lost during initializing", err)
	}
	payload := make([]byte, defaultChunkSize)
	if _, err := rand.Read(payload); err != nil {
		return fail(Internal, "failed to seed transfer payload", err)
	}
	// One budget for the whole session: download and upload draw from the
	// same per-session byte cap (spec.md §5).
	budget := newByteBudget(o.byteBudgetMax)

	var notes []string
	onWarn := func(msg string) {
		notes = append(notes, msg)
		_ = sio.Send(codec.WarningFrame{Kind: string(ProbeDegraded), Message: msg})
	}

	// IdleLatency
	session.setStage(StageIdleLatency)
	idleCtx, idleCancel := context.WithTimeout(ctx, idleProbeCount*idleProbeCadence+stageSoftDeadlineSlack)
	idleSpanCtx, endIdleSpan := o.startSpan(idleCtx, "test_stage:idle_latency")
	stageStart := time.Now()
	runProber(idleSpanCtx, sio, session, proberConfig{Stage: StageIdleLatency, Cadence: idleProbeCadence, MaxProbes: idleProbeCount}, onWarn)
	endIdleSpan(nil)
	idleCancel()
	o.metrics.StageDuration(StageIdleLatency, time.Since(stageStart))
	if err := checkTransport(sio); err != nil {
		return fail(TransportLost, "transport lost during idle latency", err)
	}

	if ctx.Err() != nil {
		return fail(Timeout, "test deadline exceeded during idle latency", ctx.Err())
	}

	// Download
	session.setStage(StageDownload)
	if err := o.runBulkStage(ctx, session, sio, StageDownload, Download, payload, budget, onWarn); err != nil {
		return fail(KindOf(err), err.Error(), err)
	}
	if ctx.Err() != nil {
		return fail(Timeout, "test deadline exceeded during download", ctx.Err())
	}

	// Upload
	session.setStage(StageUpload)
	if err := o.runBulkStage(ctx, session, sio, StageUpload, Upload, payload, budget, onWarn); err != nil {
		return fail(KindOf(err), err.Error(), err)
	}
	if ctx.Err() != nil {
		return fail(Timeout, "test deadline exceeded during upload", ctx.Err())
	}

	// Finalizing
	session.setStage(StageFinalizing)
	finalizeCtx, endFinalizeSpan := o.startSpan(ctx, "test_stage:finalizing")
	result := o.finalize(finalizeCtx, session, notes)
	endFinalizeSpan(nil)

	// Complete
	session.setStage(StageComplete)
	resultsFrame := toResultsFrame(*result)
	if err := sio.Send(resultsFrame); err != nil {
		return nil, newErr(TransportLost, "transport lost delivering results", err)
	}
	if o.store != nil {
		if err := o.store.Store(ctx, *result); err != nil {
			o.logger.Error("failed to persist test result", "test_id", result.Basic.TestID, "error", err)
		}
	}
	return result, nil
}

// runBulkStage runs the Throughput Driver and Latency Prober concurrently
// for one bulk stage, emitting Progress frames as intervals land (spec.md
// §4.1, §5).
func (o *Orchestrator) runBulkStage(ctx context.Context, session *Session, sio SessionIO, stage Stage, dir Direction, payload []byte, budget *byteBudget, onWarn func(string)) (err error) {
	ctx, endSpan := o.startSpan(ctx, "test_stage:"+stage.String())
	defer func() { endSpan(err) }()

	stageCtx, cancel := context.WithTimeout(ctx, session.Duration+stageSoftDeadlineSlack)
	defer cancel()

	stageStart := time.Now()

	onInterval := func(iv ThroughputInterval) {
		pct := int(time.Since(stageStart) * 100 / session.Duration)
		if pct > 100 {
			pct = 100
		}
		mbps := throughputMbps(iv)
		frame := codec.ProgressFrame{
			Stage:        uint8(stage),
			Pct:          uint8(pct),
			SpeedMbpsX10: uint16(mbps * 10),
		}
		if latest := latestSample(session, stage); latest != nil {
			frame.HasLatency = true
			frame.LatencyMsX10 = uint16(*latest * 10)
		}
		_ = sio.Send(frame)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if dir == Download {
			runDownloadDriver(stageCtx, sio, session, payload, session.Duration, budget, onInterval)
		} else {
			runUploadDriver(stageCtx, sio, session, session.Duration, budget, onInterval)
		}
	}()

	runProber(stageCtx, sio, session, proberConfig{Stage: stage, Cadence: loadedProbeCadence}, onWarn)
	<-done

	o.metrics.StageDuration(stage, time.Since(stageStart))
	err = checkTransport(sio)
	return err
}

// checkTransport reports TransportLost if the transport's Done channel has
// already fired.
func checkTransport(sio SessionIO) error {
	select {
	case <-sio.Done():
		return newErr(TransportLost, "transport closed", nil)
	default:
		return nil
	}
}

// throughputMbps converts one interval to decimal megabits per second
// (spec.md §4.1 "decimal megabit = 10^6 bits").
func throughputMbps(iv ThroughputInterval) float64 {
	if iv.Duration <= 0 {
		return 0
	}
	bits := float64(iv.Bytes) * 8
	return bits / iv.Duration.Seconds() / 1e6
}

// latestSample returns the most recent round-trip sample for stage, if any.
func latestSample(session *Session, stage Stage) *float64 {
	samples := session.SamplesFor(stage)
	if len(samples) == 0 {
		return nil
	}
	v := samples[len(samples)-1].RoundTripMs
	return &v
}

// finalize aggregates samples/intervals into the immutable TestResult
// (spec.md §4.1 Finalizing: "aggregate, compute derived metrics").
func (o *Orchestrator) finalize(ctx context.Context, session *Session, notes []string) *TestResult {
	idle := session.SamplesFor(StageIdleLatency)
	download := session.SamplesFor(StageDownload)
	upload := session.SamplesFor(StageUpload)

	loaded := computeLoadedLatency(idle, download, upload, notes)

	downMbps := aggregateMbps(session.IntervalsFor(Download))
	upMbps := aggregateMbps(session.IntervalsFor(Upload))

	idleAvg := 0.0
	if loaded.IdleAvgMs != nil {
		idleAvg = *loaded.IdleAvgMs
	}
	idleJitter := 0.0
	if loaded.JitterMs != nil {
		idleJitter = *loaded.JitterMs
	}

	basic := BasicResult{
		TestID:      session.ID,
		ServerID:    session.ServerID,
		DownMbps:    downMbps,
		UpMbps:      upMbps,
		LatencyMs:   idleAvg,
		JitterMs:    idleJitter,
		DurationSec: session.Duration.Seconds(),
		ClientAddr:  session.ClientAddr,
		Timestamp:   time.Now().UTC(),
	}

	scores := computeUseCaseScores(ScoreInputs{
		DownloadLatencyMs: loaded.DownloadAvgMs,
		UploadLatencyMs:   loaded.UploadAvgMs,
		IdleLatencyMs:     loaded.IdleAvgMs,
		JitterMs:          loaded.JitterMs,
		DownMbps:          downMbps,
		UpMbps:            upMbps,
	})

	result := &TestResult{Basic: basic, LoadedLatency: loaded, UseCaseScores: scores}

	if session.Flags.AIInsights && o.analyzer != nil {
		insightsCtx, cancel := context.WithTimeout(ctx, insightsCallBudget)
		defer cancel()
		ai, err := o.analyzer.Analyze(insightsCtx, insights.Input{
			DownMbps:         downMbps,
			UpMbps:           upMbps,
			LatencyMs:        idleAvg,
			JitterMs:         idleJitter,
			BufferbloatGrade: loaded.BufferbloatGrade,
			OverallScore:     scores.Overall,
			OverallGrade:     scores.OverallGrade,
		}, true)
		if err != nil {
			o.logger.Debug("insights unavailable", "test_id", session.ID, "error", err)
		} else {
			result.AIInsights = ai
		}
	}

	return result
}

// aggregateMbps converts a stage's recorded intervals to decimal megabits
// per second, discarding the leading ramp-up window from the estimate
// (spec.md §4.1 "first 500 ms of each bulk stage discarded from the speed
// estimate"). A stage no longer than the ramp keeps its last interval rather
// than reporting nothing.
func aggregateMbps(intervals []ThroughputInterval) float64 {
	var skipped time.Duration
	rest := intervals
	for len(rest) > 1 && skipped+rest[0].Duration <= throughputRampUp {
		skipped += rest[0].Duration
		rest = rest[1:]
	}

	var bytes int64
	var dur time.Duration
	for _, iv := range rest {
		bytes += iv.Bytes
		dur += iv.Duration
	}
	if dur <= 0 {
		return 0
	}
	bits := float64(bytes) * 8
	return bits / dur.Seconds() / 1e6
}

// toResultsFrame builds the wire CompactResult from a TestResult.
func toResultsFrame(r TestResult) codec.ResultsFrame {
	cr := codec.CompactResult{
		DownMbpsX10:    uint32(r.Basic.DownMbps * 10),
		UpMbpsX10:      uint32(r.Basic.UpMbps * 10),
		LatencyMsX10:   uint16(r.Basic.LatencyMs * 10),
		JitterMsX10:    uint16(r.Basic.JitterMs * 10),
		DurationSecX10: uint16(r.Basic.DurationSec * 10),
		TimestampUnix:  r.Basic.Timestamp.Unix(),
	}

	if r.LoadedLatency != nil {
		ll := r.LoadedLatency
		if ll.IdleAvgMs != nil && ll.DownloadAvgMs != nil && ll.UploadAvgMs != nil {
			cr.HasLoadedLatency = true
			cr.IdleAvgMsX10 = uint16(*ll.IdleAvgMs * 10)
			cr.DownloadAvgMsX10 = uint16(*ll.DownloadAvgMs * 10)
			cr.UploadAvgMsX10 = uint16(*ll.UploadAvgMs * 10)
			cr.IdleRPM = uint16(ll.IdleRPM)
			cr.DownloadRPM = uint16(ll.DownloadRPM)
			cr.UploadRPM = uint16(ll.UploadRPM)
		}
		cr.BufferbloatGrade = codec.BufferbloatGradeToWire(ll.BufferbloatGrade)
		cr.Notes = ll.Notes
	}

	if r.UseCaseScores != nil {
		s := r.UseCaseScores
		cr.HasScores = true
		cr.GamingScoreX10 = uint16(s.Gaming.Score * 10)
		cr.GamingGrade = codec.UseCaseGradeToWire(s.Gaming.Grade)
		cr.StreamingScoreX10 = uint16(s.Streaming.Score * 10)
		cr.StreamingGrade = codec.UseCaseGradeToWire(s.Streaming.Grade)
		cr.VideoScoreX10 = uint16(s.VideoConferencing.Score * 10)
		cr.VideoGrade = codec.UseCaseGradeToWire(s.VideoConferencing.Grade)
		cr.BrowsingScoreX10 = uint16(s.Browsing.Score * 10)
		cr.BrowsingGrade = codec.UseCaseGradeToWire(s.Browsing.Grade)
		cr.OverallScoreX10 = uint16(s.Overall * 10)
		cr.OverallGrade = codec.UseCaseGradeToWire(s.OverallGrade)
		cr.PacketLossAssumed = s.PacketLossAssumed
	}

	if r.AIInsights != nil {
		cr.HasAIInsights = true
		cr.AIInsights = r.AIInsights.Summary
	}

	return codec.ResultsFrame{Result: cr}
}
