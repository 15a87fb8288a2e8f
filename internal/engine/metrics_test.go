package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesAt(stage Stage, values ...float64) []LatencySample {
	out := make([]LatencySample, len(values))
	for i, v := range values {
		out[i] = LatencySample{RoundTripMs: v, At: time.Now(), Stage: stage}
	}
	return out
}

func TestRPM(t *testing.T) {
	assert.Equal(t, 4000, RPM(15))
	assert.Equal(t, 0, RPM(0))
	assert.Equal(t, 0, RPM(-5))
	assert.Equal(t, 666, RPM(90))
}

func TestAverageRequiresMinimumSamples(t *testing.T) {
	_, ok := average(samplesAt(StageIdleLatency, 10, 12))
	assert.False(t, ok)

	avg, ok := average(samplesAt(StageIdleLatency, 10, 12, 14))
	assert.True(t, ok)
	assert.InDelta(t, 12.0, avg, 1e-9)
}

func TestJitterIsMeanAbsoluteDelta(t *testing.T) {
	j, ok := jitter(samplesAt(StageIdleLatency, 10, 14, 8))
	require.True(t, ok)
	assert.InDelta(t, 5.0, j, 1e-9) // |14-10|=4, |8-14|=6 -> mean 5
}

func TestBufferbloatGradeBands(t *testing.T) {
	assert.Equal(t, "A+", bufferbloatGrade(1.2))
	assert.Equal(t, "A", bufferbloatGrade(1.8))
	assert.Equal(t, "B", bufferbloatGrade(2.5))
	assert.Equal(t, "C", bufferbloatGrade(4.0))
	assert.Equal(t, "D", bufferbloatGrade(8.0))
	assert.Equal(t, "F", bufferbloatGrade(12.0))
}

func TestComputeLoadedLatencyUnknownWhenUploadUndefined(t *testing.T) {
	idle := samplesAt(StageIdleLatency, 15, 15, 15, 15)
	download := samplesAt(StageDownload, 18, 19, 17)
	var upload []LatencySample // fewer than 3 samples: undefined

	result := computeLoadedLatency(idle, download, upload, nil)

	require.NotNil(t, result.IdleAvgMs)
	require.NotNil(t, result.DownloadAvgMs)
	assert.Nil(t, result.UploadAvgMs)
	assert.Nil(t, result.UploadBufferbloatRatio)
	require.NotNil(t, result.DownloadBufferbloatRatio)
	assert.Equal(t, "Unknown", result.BufferbloatGrade)
}

func TestComputeLoadedLatencyCleanLinkScenario(t *testing.T) {
	idle := samplesAt(StageIdleLatency, 15, 15, 15, 15, 15)
	download := samplesAt(StageDownload, 18, 18, 18)
	upload := samplesAt(StageUpload, 20, 20, 20)

	result := computeLoadedLatency(idle, download, upload, nil)

	require.NotNil(t, result.IdleAvgMs)
	require.NotNil(t, result.DownloadAvgMs)
	require.NotNil(t, result.UploadAvgMs)
	assert.InDelta(t, 15.0, *result.IdleAvgMs, 1e-9)
	assert.Equal(t, "A+", result.BufferbloatGrade) // ratio 20/15 = 1.33 < 1.5
}

func TestComputeLoadedLatencyIdleZeroNeverDivides(t *testing.T) {
	idle := samplesAt(StageIdleLatency, 0, 0, 0)
	download := samplesAt(StageDownload, 10, 10, 10)
	upload := samplesAt(StageUpload, 10, 10, 10)

	result := computeLoadedLatency(idle, download, upload, nil)
	assert.Equal(t, "Unknown", result.BufferbloatGrade)
}
