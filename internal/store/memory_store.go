package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// MemoryStore is an in-memory engine.Store + History double: the primary
// backend whenever store_backend is not "redis", and the store used by the
// rest and web packages' tests.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]engine.TestResult
	order   []string // insertion order, most recent last
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]engine.TestResult)}
}

func (m *MemoryStore) Store(_ context.Context, r engine.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[r.Basic.TestID]; !exists {
		m.order = append(m.order, r.Basic.TestID)
	}
	m.results[r.Basic.TestID] = r
	return nil
}

func (m *MemoryStore) Fetch(_ context.Context, id string) (*engine.TestResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

// Recent takes the limit most recently stored basic results and returns them
// ordered by Timestamp, newest first.
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]engine.BasicResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.BasicResult, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.results[m.order[i]].Basic)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
