package web

import (
	"sync"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// pendingTTL bounds how long a session started via POST /api/test/enhanced/start
// waits for its websocket to connect before being discarded (spec.md §6
// doesn't define a hard bound; a client that never opens the socket must
// not leak a concurrency-semaphore slot forever).
const pendingTTL = 30 * time.Second

// Registry hands a Session from the REST "start" handler to the websocket
// upgrade handler that actually runs it, since the two live on different
// HTTP requests (spec.md §6: start returns a websocket_url the client then
// connects to separately).
type Registry struct {
	mu      sync.Mutex
	pending map[string]*engine.Session
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*engine.Session)}
}

// Put stashes a freshly started session, evicting it on its own if no
// websocket claims it within pendingTTL. onExpire, if non-nil, is called on
// eviction so the caller can release any resources (e.g. the Orchestrator's
// concurrency-semaphore slot) the session was holding.
func (r *Registry) Put(session *engine.Session, onExpire func(*engine.Session)) {
	r.mu.Lock()
	r.pending[session.ID] = session
	r.mu.Unlock()

	time.AfterFunc(pendingTTL, func() {
		r.mu.Lock()
		s, ok := r.pending[session.ID]
		if ok && s == session {
			delete(r.pending, session.ID)
		}
		r.mu.Unlock()
		if ok && onExpire != nil {
			onExpire(session)
		}
	})
}

// Take removes and returns the pending session for id, if any.
func (r *Registry) Take(id string) (*engine.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return s, ok
}
