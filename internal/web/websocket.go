// Package web adapts the engine's transport-agnostic core onto HTTP: one
// upgraded websocket connection per test session, and the REST surface that
// starts/reads tests (spec.md §6).
package web

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ozarkconnect/linkpulse/internal/codec"
	"github.com/ozarkconnect/linkpulse/internal/logging"
)

const (
	readLimitBytes  = 1 << 20 // one bulk chunk plus framing overhead
	pongWait        = 60 * time.Second
	writeWait       = 10 * time.Second
	keepaliveTicker = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connection implements engine.SessionIO over one upgraded websocket. The
// encoding mode is pinned by the first inbound message's websocket frame
// type (spec.md §4.4: binary by default, textual fallback "detected by the
// first client message being textual").
type Connection struct {
	conn   *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex
	mode    codec.Mode
	modeSet bool
	modeMu  sync.Mutex

	pongs   chan codec.PongFrame
	uploads chan codec.DataFrame
	done    chan struct{}
	closeOnce sync.Once
}

// Upgrade upgrades an HTTP request to a websocket and wraps it as a
// Connection. The caller is responsible for starting ReadLoop in its own
// goroutine before handing the Connection to the Orchestrator.
func Upgrade(w http.ResponseWriter, r *http.Request, logger logging.Logger) (*Connection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	c := &Connection{
		conn:    conn,
		logger:  logger,
		pongs:   make(chan codec.PongFrame, 4),
		uploads: make(chan codec.DataFrame, 64),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(readLimitBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	return c, nil
}

// Send encodes and writes one outbound frame. Concurrent callers (the
// Orchestrator, the Driver, and the Prober all write to the same
// connection) are serialized by writeMu, which is also where backpressure
// is felt: a full OS socket buffer blocks the writer here, satisfying
// spec.md §4.3's "writes without unbounded queuing".
func (c *Connection) Send(f codec.Frame) error {
	mode := c.modeForSend()

	payload, err := codec.Encode(mode, f)
	if err != nil {
		return fmt.Errorf("encode %T: %w", f, err)
	}

	wireType := websocket.BinaryMessage
	if mode == codec.ModeText {
		wireType = websocket.TextMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(wireType, payload); err != nil {
		return fmt.Errorf("write %T: %w", f, err)
	}
	return nil
}

func (c *Connection) modeForSend() codec.Mode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	if c.modeSet {
		return c.mode
	}
	// Before any inbound message has arrived, default to binary (spec.md
	// §4.4 "server chooses binary framing by default").
	return codec.ModeBinary
}

func (c *Connection) Pongs() <-chan codec.PongFrame   { return c.pongs }
func (c *Connection) Uploads() <-chan codec.DataFrame { return c.uploads }
func (c *Connection) Done() <-chan struct{}           { return c.done }

func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// ReadLoop pumps inbound messages until the connection closes, pinning the
// encoding mode on the first message and demultiplexing Pong/Data frames
// into their typed channels so the Prober and the upload Driver never race
// each other reading the same stream (spec.md §5 "one appender per stage").
// Any other inbound frame type (a client sending StartTest again, say) is
// ignored; the protocol doesn't define a server-side reaction to it.
func (c *Connection) ReadLoop() {
	defer c.Close()

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		wireType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		mode := codec.ModeBinary
		if wireType == websocket.TextMessage {
			mode = codec.ModeText
		}
		c.pinMode(mode)

		frame, err := codec.Decode(mode, data)
		if err != nil {
			c.logger.Warn("dropping undecodable inbound frame", "error", err)
			continue
		}

		switch v := frame.(type) {
		case codec.PongFrame:
			select {
			case c.pongs <- v:
			default:
			}
		case codec.DataFrame:
			select {
			case c.uploads <- v:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Connection) pinMode(mode codec.Mode) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	if !c.modeSet {
		c.mode = mode
		c.modeSet = true
	}
}

// Keepalive sends periodic protocol-level pings so idle connections aren't
// reclaimed by intermediaries; it is distinct from the Latency Prober's
// application-level Ping/Pong exchange.
func (c *Connection) Keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(keepaliveTicker)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
