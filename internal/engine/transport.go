package engine

import "github.com/ozarkconnect/linkpulse/internal/codec"

// SessionIO is the narrow duplex the Orchestrator drives a session over. The
// engine package never imports net/http or gorilla/websocket directly
// (spec.md §9: "no Driver/Prober references the Orchestrator directly"; by
// the same separation the core stays transport-agnostic) — internal/web
// implements SessionIO over one upgraded websocket connection, demultiplexing
// inbound frames into the typed channels below so the Prober and the upload
// Driver never race each other reading the same stream.
type SessionIO interface {
	// Send writes one outbound frame. A full underlying send buffer blocks
	// the caller: that is the backpressure spec.md §4.3 calls for, not an
	// error.
	Send(f codec.Frame) error

	// Pongs delivers inbound Pong frames to the Latency Prober.
	Pongs() <-chan codec.PongFrame

	// Uploads delivers inbound bulk Data frames to the upload Throughput
	// Driver.
	Uploads() <-chan codec.DataFrame

	// Done is closed the moment the underlying transport is lost, so every
	// sub-task can observe cancellation at its next suspension point
	// (spec.md §5).
	Done() <-chan struct{}

	// Close tears down the underlying connection. Idempotent.
	Close() error
}
