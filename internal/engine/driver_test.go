package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDownloadDriverMovesBytesWithinBudget(t *testing.T) {
	transport := newFakeTransport()
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 1 * time.Second})
	payload := make([]byte, 4096)
	budget := newByteBudget(1 << 20) // 1 MiB

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var intervalCount int
	runDownloadDriver(ctx, transport, session, payload, 300*time.Millisecond, budget, func(ThroughputInterval) {
		intervalCount++
	})

	intervals := session.IntervalsFor(Download)
	require.NotEmpty(t, intervals)
	assert.Equal(t, intervalCount, len(intervals))

	var total int64
	for _, iv := range intervals {
		total += iv.Bytes
		assert.Equal(t, Download, iv.Direction)
	}
	assert.LessOrEqual(t, total, int64(1<<20))
	assert.LessOrEqual(t, budget.Remaining(), int64(1<<20))
}

func TestAggregateMbpsDiscardsRampUp(t *testing.T) {
	// Five 100ms intervals crawl, then five move at ten times the rate; the
	// leading 500ms ramp must not drag the estimate down.
	var intervals []ThroughputInterval
	for i := 0; i < 5; i++ {
		intervals = append(intervals, ThroughputInterval{Bytes: 12_500, Duration: 100 * time.Millisecond, Direction: Download})
	}
	for i := 0; i < 5; i++ {
		intervals = append(intervals, ThroughputInterval{Bytes: 125_000, Duration: 100 * time.Millisecond, Direction: Download})
	}

	// 125000 bytes per 100ms = 10 Mbps; the 1 Mbps ramp is discarded.
	assert.InDelta(t, 10.0, aggregateMbps(intervals), 1e-9)
}

func TestAggregateMbpsKeepsSubRampStage(t *testing.T) {
	intervals := []ThroughputInterval{
		{Bytes: 12_500, Duration: 100 * time.Millisecond, Direction: Download},
		{Bytes: 12_500, Duration: 100 * time.Millisecond, Direction: Download},
	}
	assert.InDelta(t, 1.0, aggregateMbps(intervals), 1e-9)
}

func TestRunDownloadDriverStopsWhenBudgetExhausted(t *testing.T) {
	transport := newFakeTransport()
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 5 * time.Second})
	payload := make([]byte, 4096)
	budget := newByteBudget(4096 * 3) // exhausts after 3 chunks

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runDownloadDriver(ctx, transport, session, payload, 5*time.Second, budget, nil)

	assert.Equal(t, int64(0), budget.Remaining())
}

func TestRunUploadDriverCountsReceivedBytes(t *testing.T) {
	transport := newFakeTransport()
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 1 * time.Second})
	budget := newByteBudget(1 << 20)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 20; i++ {
			<-ticker.C
			transport.feedUpload(1024)
		}
	}()

	runUploadDriver(ctx, transport, session, 250*time.Millisecond, budget, nil)

	sent := transport.sentFrames()
	require.NotEmpty(t, sent)

	foundEnd := false
	for _, f := range sent {
		foundEnd = foundEnd || f.Type().String() == "EndUpload"
	}
	assert.True(t, foundEnd, "expected an EndUpload frame to be sent")

	var received int64
	for _, iv := range session.IntervalsFor(Upload) {
		received += iv.Bytes
	}
	assert.Greater(t, received, int64(0), "expected uploaded bytes to be counted")
}
