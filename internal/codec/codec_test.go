package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryRoundTrip(t *testing.T) {
	cases := []Frame{
		StartTestFrame{DurationMs: 15000, ChunkSize: 65536, ParallelStreams: 4, AIInsights: true, Binary: true},
		PingFrame{Token: 42, TSendMs: 123456789},
		PongFrame{Token: 42, TEchoMs: 123456999},
		BeginUploadFrame{BytesGoal: 1 << 20, DeadlineMs: 999},
		EndUploadFrame{},
		ProgressFrame{Stage: 2, Pct: 50, SpeedMbpsX10: 1234, HasLatency: true, LatencyMsX10: 155},
		ErrorFrame{Kind: "Timeout", Message: "probe deadline exceeded"},
		WarningFrame{Kind: "ProbeDegraded", Message: "5 consecutive probe failures"},
		DataFrame{Payload: []byte{1, 2, 3, 4, 5}},
	}

	for _, f := range cases {
		encoded, err := EncodeBinary(f)
		require.NoError(t, err)
		decoded, err := DecodeBinary(encoded)
		require.NoError(t, err)
		assert.Equal(t, f, decoded)
	}
}

func TestBinaryRoundTripResults(t *testing.T) {
	r := CompactResult{
		DownMbpsX10:      4500,
		UpMbpsX10:         450,
		LatencyMsX10:      155,
		JitterMsX10:       30,
		DurationSecX10:    150,
		TimestampUnix:     1753700000,
		HasLoadedLatency:  true,
		IdleAvgMsX10:      150,
		DownloadAvgMsX10:  200,
		UploadAvgMsX10:    300,
		IdleRPM:           400,
		DownloadRPM:       300,
		UploadRPM:         200,
		BufferbloatGrade:  GradeB,
		HasScores:         true,
		GamingScoreX10:    900,
		GamingGrade:       GradeExcellent,
		StreamingScoreX10: 850,
		StreamingGrade:    GradeGood,
		VideoScoreX10:     700,
		VideoGrade:        GradeFair,
		BrowsingScoreX10:  950,
		BrowsingGrade:     GradeExcellent,
		OverallScoreX10:   850,
		OverallGrade:      GradeGood,
		PacketLossAssumed: true,
		HasAIInsights:     true,
		AIInsights:        "Your connection handles gaming well but video calls may stutter under load.",
		Notes:             []string{"probe degraded during upload stage"},
	}

	encoded, err := EncodeBinary(ResultsFrame{Result: r})
	require.NoError(t, err)
	decoded, err := DecodeBinary(encoded)
	require.NoError(t, err)
	assert.Equal(t, ResultsFrame{Result: r}, decoded)
}

func TestTextRoundTrip(t *testing.T) {
	cases := []Frame{
		StartTestFrame{DurationMs: 15000, ChunkSize: 65536, ParallelStreams: 4, AIInsights: true},
		PingFrame{Token: 7, TSendMs: 42},
		PongFrame{Token: 7, TEchoMs: 43},
		BeginUploadFrame{BytesGoal: 1 << 20, DeadlineMs: 999},
		EndUploadFrame{},
		ProgressFrame{Stage: 1, Pct: 75, SpeedMbpsX10: 99, HasLatency: false},
		ErrorFrame{Kind: "Internal", Message: "unexpected"},
		WarningFrame{Kind: "ProbeDegraded", Message: "5 consecutive probe failures"},
		DataFrame{Payload: []byte{1, 2, 3}},
	}

	for _, f := range cases {
		encoded, err := EncodeText(f)
		require.NoError(t, err)
		decoded, err := DecodeText(encoded)
		require.NoError(t, err)
		assert.Equal(t, f, decoded)
	}
}

func TestBinaryAndTextDecodeToEqualValues(t *testing.T) {
	cases := []Frame{
		StartTestFrame{DurationMs: 15000, ChunkSize: 65536, ParallelStreams: 4, AIInsights: true, Binary: true},
		PingFrame{Token: 42, TSendMs: 123456789},
		PongFrame{Token: 42, TEchoMs: 123456999},
		BeginUploadFrame{BytesGoal: 1 << 20, DeadlineMs: 999},
		EndUploadFrame{},
		ProgressFrame{Stage: 2, Pct: 50, SpeedMbpsX10: 1234, HasLatency: true, LatencyMsX10: 155},
		ResultsFrame{Result: CompactResult{DownMbpsX10: 4500, UpMbpsX10: 450, LatencyMsX10: 155, TimestampUnix: 1753700000, Notes: []string{"probe degraded during upload stage"}}},
		ErrorFrame{Kind: "Timeout", Message: "probe deadline exceeded"},
		WarningFrame{Kind: "ProbeDegraded", Message: "5 consecutive probe failures"},
		DataFrame{Payload: []byte{1, 2, 3, 4, 5}},
	}

	for _, f := range cases {
		binEncoded, err := EncodeBinary(f)
		require.NoError(t, err)
		textEncoded, err := EncodeText(f)
		require.NoError(t, err)

		fromBinary, err := DecodeBinary(binEncoded)
		require.NoError(t, err)
		fromText, err := DecodeText(textEncoded)
		require.NoError(t, err)

		assert.Equal(t, fromBinary, fromText, "%s must decode identically from both encodings", f.Type())
	}
}

func TestProgressSizeBudget(t *testing.T) {
	p := ProgressFrame{Stage: 2, Pct: 42, SpeedMbpsX10: 4321, HasLatency: true, LatencyMsX10: 155}

	textEncoded, err := EncodeText(p)
	require.NoError(t, err)
	binEncoded, err := EncodeBinary(p)
	require.NoError(t, err)

	assert.True(t, SizeBudgetOK(len(textEncoded), len(binEncoded)),
		"binary %d bytes vs text %d bytes should meet the size budget", len(binEncoded), len(textEncoded))
	assert.LessOrEqual(t, len(binEncoded), 80)
}

func TestResultsSizeBudget(t *testing.T) {
	frame := ResultsFrame{Result: CompactResult{
		DownMbpsX10:      4500,
		UpMbpsX10:        450,
		LatencyMsX10:     155,
		JitterMsX10:      30,
		DurationSecX10:   150,
		TimestampUnix:    1753700000,
		HasLoadedLatency: true,
		IdleAvgMsX10:     150,
		DownloadAvgMsX10: 200,
		UploadAvgMsX10:   300,
		IdleRPM:          400,
		DownloadRPM:      300,
		UploadRPM:        200,
		BufferbloatGrade: GradeAPlus,
		HasScores:        true,
		GamingScoreX10:   900,
		GamingGrade:      GradeExcellent,
		StreamingScoreX10: 850,
		StreamingGrade:    GradeGood,
		VideoScoreX10:     700,
		VideoGrade:        GradeFair,
		BrowsingScoreX10:  950,
		BrowsingGrade:     GradeExcellent,
		OverallScoreX10:   850,
		OverallGrade:      GradeGood,
		PacketLossAssumed: true,
	}}

	textEncoded, err := EncodeText(frame)
	require.NoError(t, err)
	binEncoded, err := EncodeBinary(frame)
	require.NoError(t, err)

	assert.LessOrEqual(t, float64(len(binEncoded)), float64(len(textEncoded))*0.25,
		"binary %d bytes vs text %d bytes", len(binEncoded), len(textEncoded))
}

func TestGradeWireMapping(t *testing.T) {
	assert.Equal(t, GradeAPlus, BufferbloatGradeToWire("A+"))
	assert.Equal(t, "A+", WireToBufferbloatGrade(GradeAPlus))
	assert.Equal(t, GradeUnknown, BufferbloatGradeToWire("nonsense"))

	assert.Equal(t, GradeExcellent, UseCaseGradeToWire("Excellent"))
	assert.Equal(t, "Excellent", WireToUseCaseGrade(GradeExcellent))
}

func TestDecodeBinaryRejectsTruncated(t *testing.T) {
	_, err := DecodeBinary([]byte{byte(MsgPing), 0, 1})
	assert.Error(t, err)

	_, err = DecodeBinary(nil)
	assert.Error(t, err)
}
