package engine

import (
	"context"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/codec"
)

// defaultChunkSize is the fixed-size binary chunk the Driver moves bytes in
// (spec.md §4.3).
const defaultChunkSize = 64 * 1024

// throughputRampUp is the leading window of each bulk stage discarded from
// the stage's speed estimate (see aggregateMbps). Intervals inside the ramp
// are still recorded and reported as progress.
const throughputRampUp = 500 * time.Millisecond

// throughputFlushInterval is how often a ThroughputInterval snapshot is
// emitted (spec.md §4.3 "every ~100 ms").
const throughputFlushInterval = 100 * time.Millisecond

// runDownloadDriver moves bulk bytes server→client for duration, using
// chunks sliced from payload (regenerated once per test by the caller, per
// spec.md §4.3). It stops early if ctx is cancelled, the transport errors,
// or the session's byte budget is exhausted.
func runDownloadDriver(ctx context.Context, sio SessionIO, session *Session, payload []byte, duration time.Duration, budget *byteBudget, onInterval func(ThroughputInterval)) {
	start := time.Now()
	deadline := start.Add(duration)
	lastFlush := start
	var windowBytes int64

	flush := func(now time.Time) {
		dur := now.Sub(lastFlush)
		if dur <= 0 {
			return
		}
		iv := ThroughputInterval{Bytes: windowBytes, Duration: dur, Direction: Download}
		session.OnInterval(iv)
		if onInterval != nil {
			onInterval(iv)
		}
		windowBytes = 0
		lastFlush = now
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		if !now.Before(deadline) {
			break
		}

		want := int64(len(payload))
		granted := budget.Take(want)
		if granted == 0 {
			break
		}
		chunk := payload
		if granted < want {
			chunk = payload[:granted]
		}

		if err := sio.Send(codec.DataFrame{Payload: chunk}); err != nil {
			return
		}
		windowBytes += granted

		if now.Sub(lastFlush) >= throughputFlushInterval {
			flush(now)
		}
	}

	flush(time.Now())
}

// runUploadDriver instructs the client to begin sending (spec.md §4.3
// "client is instructed via a protocol message") and counts bytes received
// on sio.Uploads() for duration, then signals EndUpload.
func runUploadDriver(ctx context.Context, sio SessionIO, session *Session, duration time.Duration, budget *byteBudget, onInterval func(ThroughputInterval)) {
	start := time.Now()
	deadline := start.Add(duration)

	_ = sio.Send(codec.BeginUploadFrame{
		BytesGoal:  uint64(budget.Remaining()),
		DeadlineMs: uint64(duration.Milliseconds()),
	})

	ticker := time.NewTicker(throughputFlushInterval)
	defer ticker.Stop()

	lastFlush := start
	var windowBytes int64

	flush := func(now time.Time) {
		dur := now.Sub(lastFlush)
		if dur <= 0 {
			return
		}
		iv := ThroughputInterval{Bytes: windowBytes, Duration: dur, Direction: Upload}
		session.OnInterval(iv)
		if onInterval != nil {
			onInterval(iv)
		}
		windowBytes = 0
		lastFlush = now
	}

loop:
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		select {
		case <-ctx.Done():
			break loop

		case data, ok := <-sio.Uploads():
			if !ok {
				break loop
			}
			windowBytes += budget.Take(int64(len(data.Payload)))

		case now := <-ticker.C:
			flush(now)

		case <-time.After(remaining):
			break loop
		}
	}

	flush(time.Now())
	_ = sio.Send(codec.EndUploadFrame{})
}
