package engine

import (
	"sync"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/codec"
)

// fakeTransport is a loopback SessionIO double for tests: Send on an
// outbound Ping is automatically echoed back as a Pong so the Prober has
// something to match against, and uploaded Data frames are synthesized by
// feedUpload so the upload Driver has bytes to count.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []codec.Frame
	pongs   chan codec.PongFrame
	uploads chan codec.DataFrame
	done    chan struct{}
	closed  bool

	echoLatency time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pongs:   make(chan codec.PongFrame, 64),
		uploads: make(chan codec.DataFrame, 64),
		done:    make(chan struct{}),
	}
}

func (f *fakeTransport) Send(fr codec.Frame) error {
	f.mu.Lock()
	f.sent = append(f.sent, fr)
	f.mu.Unlock()

	if ping, ok := fr.(codec.PingFrame); ok {
		go func() {
			if f.echoLatency > 0 {
				time.Sleep(f.echoLatency)
			}
			select {
			case f.pongs <- codec.PongFrame{Token: ping.Token, TEchoMs: uint64(time.Now().UnixMilli())}:
			case <-f.done:
			}
		}()
	}
	return nil
}

func (f *fakeTransport) Pongs() <-chan codec.PongFrame     { return f.pongs }
func (f *fakeTransport) Uploads() <-chan codec.DataFrame   { return f.uploads }
func (f *fakeTransport) Done() <-chan struct{}             { return f.done }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeTransport) sentFrames() []codec.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]codec.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) feedUpload(n int) {
	f.uploads <- codec.DataFrame{Payload: make([]byte, n)}
}
