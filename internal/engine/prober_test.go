package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/codec"
	"github.com/stretchr/testify/assert"
)

func TestRunProberCollectsBoundedSamples(t *testing.T) {
	transport := newFakeTransport()
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stats := runProber(ctx, transport, session, proberConfig{
		Stage:     StageIdleLatency,
		Cadence:   20 * time.Millisecond,
		MaxProbes: 5,
	}, nil)

	assert.Equal(t, 5, stats.Sent)
	assert.False(t, stats.Degraded)

	samples := session.SamplesFor(StageIdleLatency)
	assert.Len(t, samples, 5)
	for _, s := range samples {
		assert.GreaterOrEqual(t, s.RoundTripMs, 0.0)
		assert.Equal(t, StageIdleLatency, s.Stage)
	}
}

func TestRunProberStopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	stats := runProber(ctx, transport, session, proberConfig{
		Stage:   StageDownload,
		Cadence: 10 * time.Millisecond,
	}, nil)

	assert.GreaterOrEqual(t, stats.Sent, 1)
}

func TestRunProberRaisesDegradedOnRepeatedFailure(t *testing.T) {
	session := newSession("srv-1", "127.0.0.1", StartConfig{Duration: 5 * time.Second})
	failing := &alwaysFailTransport{done: make(chan struct{})}

	var warned []string
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stats := runProber(ctx, failing, session, proberConfig{
		Stage:   StageDownload,
		Cadence: 5 * time.Millisecond,
	}, func(msg string) { warned = append(warned, msg) })

	assert.True(t, stats.Degraded)
	assert.Len(t, warned, 1)
}

// alwaysFailTransport's Send always errors, to exercise the
// consecutive-failure ProbeDegraded path.
type alwaysFailTransport struct {
	done chan struct{}
}

func (a *alwaysFailTransport) Send(codec.Frame) error                { return errors.New("send failed") }
func (a *alwaysFailTransport) Pongs() <-chan codec.PongFrame         { return nil }
func (a *alwaysFailTransport) Uploads() <-chan codec.DataFrame       { return nil }
func (a *alwaysFailTransport) Done() <-chan struct{}                 { return a.done }
func (a *alwaysFailTransport) Close() error                          { close(a.done); return nil }
