package engine

// Package-level note: every scoring table below is expressed as data (a
// slice of anchors), never as ad-hoc if/else chains, per spec.md §4.3's
// explicit requirement that component grading stay transparent and
// inspectable.

// anchor is one step of a piecewise step function mapping a measured value
// to a point award.
type anchor struct {
	Threshold float64
	Points    float64
}

// scoreLessThan awards the first anchor (in ascending threshold order)
// whose threshold exceeds value, or elsePoints if none do.
func scoreLessThan(value float64, anchors []anchor, elsePoints float64) float64 {
	for _, a := range anchors {
		if value < a.Threshold {
			return a.Points
		}
	}
	return elsePoints
}

// scoreAtLeast awards the first anchor (in descending threshold order)
// whose threshold is met or exceeded by value, or elsePoints if none are.
func scoreAtLeast(value float64, anchors []anchor, elsePoints float64) float64 {
	for _, a := range anchors {
		if value >= a.Threshold {
			return a.Points
		}
	}
	return elsePoints
}

// scaleAnchors derives a table scaled to a different component point
// budget, used when spec.md §4.3 gives a canonical table for one use case's
// weighting of a component and leaves the others "defined analogously".
func scaleAnchors(anchors []anchor, fromMax, toMax float64) []anchor {
	out := make([]anchor, len(anchors))
	factor := toMax / fromMax
	for i, a := range anchors {
		out[i] = anchor{Threshold: a.Threshold, Points: a.Points * factor}
	}
	return out
}

// Canonical tables, transcribed directly from spec.md §4.3.
var (
	downloadLatencyTable50 = []anchor{ // of 50 pts, gaming
		{20, 50}, {50, 45}, {80, 35}, {100, 25}, {150, 15},
	}
	jitterTable25 = []anchor{ // of 25 pts
		{5, 25}, {15, 20}, {30, 15},
	}
	downloadSpeedTable40 = []anchor{ // of 40 pts, streaming (descending, "at least")
		{100, 40}, {50, 36}, {25, 32}, {15, 26}, {10, 20}, {5, 12},
	}
	uploadSpeedTable30 = []anchor{ // of 30 pts, video (descending, "at least")
		{20, 30}, {10, 27}, {5, 22}, {3, 16}, {1.5, 10},
	}
	uploadLatencyTable30 = []anchor{ // of 30 pts, video
		{30, 30}, {80, 25}, {150, 18}, {250, 10},
	}
	idleLatencyTable40 = []anchor{ // of 40 pts, browsing
		{20, 40}, {50, 35}, {100, 28}, {200, 15},
	}
	// packetLossTable10 is this implementation's own anchors for the
	// packet-loss component (spec.md §9 Open Questions: "packet loss input
	// is mentioned ... but never measured in the source"). Scaled to each
	// use case's packet-loss point budget when present; awarded in full
	// when the input is absent (assume-best, per §4.3).
	packetLossTable10 = []anchor{ // of 10 pts
		{0.1, 10}, {1.0, 9}, {2.5, 7}, {5.0, 4},
	}
)

// Derived tables, scaled from the canonical ones per use case.
var (
	downloadLatencyTable30 = scaleAnchors(downloadLatencyTable50, 50, 30) // streaming
	jitterTable20           = scaleAnchors(jitterTable25, 25, 20)          // streaming
	jitterTable10           = scaleAnchors(jitterTable25, 25, 10)          // browsing
	downloadSpeedTable10    = scaleAnchors(downloadSpeedTable40, 40, 10)   // gaming
	downloadSpeedTable15    = scaleAnchors(downloadSpeedTable40, 40, 15)   // video
	packetLossTable15       = scaleAnchors(packetLossTable10, 10, 15)      // gaming
)

// ScoreInputs is everything the scoring model needs. PacketLossPct is
// optional (nil means "not measured"; spec.md §4.3 awards its allocation
// in full and the result is marked PacketLossAssumed).
type ScoreInputs struct {
	DownloadLatencyMs *float64 // download-loaded latency average
	UploadLatencyMs   *float64 // upload-loaded latency average
	IdleLatencyMs     *float64
	JitterMs          *float64 // idle-stage jitter, per spec.md §4.1
	DownMbps          float64
	UpMbps            float64
	PacketLossPct     *float64
}

// clamp01to100 clamps a score to [0, 100] per spec.md §3 invariant.
func clamp01to100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// gradeFor assigns the textual grade bands of spec.md §4.3.
func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 60:
		return "Fair"
	case score >= 40:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// valueOr returns the undefined-safe value to feed an anchor table: when a
// latency figure is undefined (nil), the component is scored as if at the
// worst anchor (the "else" case naturally applies to any huge value).
func valueOr(p *float64, worst float64) float64 {
	if p == nil {
		return worst
	}
	return *p
}

func packetLossPoints(in ScoreInputs, table []anchor, maxPoints float64) (float64, bool) {
	if in.PacketLossPct == nil {
		return maxPoints, true // assume-best
	}
	return scoreLessThan(*in.PacketLossPct, table, table[len(table)-1].Points/2), false
}

// computeUseCaseScores is a pure function of (basic-derived inputs,
// loaded-latency derived inputs): spec.md §8 requires it be deterministic —
// same inputs, same output.
func computeUseCaseScores(in ScoreInputs) *UseCaseScores {
	assumedAny := false

	// Gaming: download-loaded latency 50, jitter 25, packet loss 15, download speed 10.
	gamingLossPts, gamingAssumed := packetLossPoints(in, packetLossTable15, 15)
	gaming := scoreLessThan(valueOr(in.DownloadLatencyMs, 1e9), downloadLatencyTable50, 5) +
		scoreLessThan(valueOr(in.JitterMs, 1e9), jitterTable25, 5) +
		gamingLossPts +
		scoreAtLeast(in.DownMbps, downloadSpeedTable10, 2)

	// Streaming: download speed 40, download-loaded latency 30, jitter 20, packet loss 10.
	streamingLossPts, streamingAssumed := packetLossPoints(in, packetLossTable10, 10)
	streaming := scoreAtLeast(in.DownMbps, downloadSpeedTable40, 4) +
		scoreLessThan(valueOr(in.DownloadLatencyMs, 1e9), downloadLatencyTable30, 3) +
		scoreLessThan(valueOr(in.JitterMs, 1e9), jitterTable20, 4) +
		streamingLossPts

	// Video-conferencing: upload speed 30, upload-loaded latency 30, jitter 25, download speed 15.
	video := scoreAtLeast(in.UpMbps, uploadSpeedTable30, 3) +
		scoreLessThan(valueOr(in.UploadLatencyMs, 1e9), uploadLatencyTable30, 3) +
		scoreLessThan(valueOr(in.JitterMs, 1e9), jitterTable25, 5) +
		scoreAtLeast(in.DownMbps, downloadSpeedTable15, 1.5)

	// Browsing: download speed 40, idle latency 40, jitter 10, packet loss 10.
	browsingLossPts, browsingAssumed := packetLossPoints(in, packetLossTable10, 10)
	browsing := scoreAtLeast(in.DownMbps, downloadSpeedTable40, 4) +
		scoreLessThan(valueOr(in.IdleLatencyMs, 1e9), idleLatencyTable40, 5) +
		scoreLessThan(valueOr(in.JitterMs, 1e9), jitterTable10, 2) +
		browsingLossPts

	assumedAny = gamingAssumed || streamingAssumed || browsingAssumed

	scores := &UseCaseScores{
		Gaming:            ScoreResult{Score: clamp01to100(gaming)},
		Streaming:         ScoreResult{Score: clamp01to100(streaming)},
		VideoConferencing: ScoreResult{Score: clamp01to100(video)},
		Browsing:          ScoreResult{Score: clamp01to100(browsing)},
		PacketLossAssumed: assumedAny,
	}
	scores.Gaming.Grade = gradeFor(scores.Gaming.Score)
	scores.Streaming.Grade = gradeFor(scores.Streaming.Score)
	scores.VideoConferencing.Grade = gradeFor(scores.VideoConferencing.Score)
	scores.Browsing.Grade = gradeFor(scores.Browsing.Score)

	scores.Overall = clamp01to100((scores.Gaming.Score + scores.Streaming.Score +
		scores.VideoConferencing.Score + scores.Browsing.Score) / 4)
	scores.OverallGrade = gradeFor(scores.Overall)

	return scores
}
