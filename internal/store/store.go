// Package store implements the persistence collaborator contract (spec.md
// §6): store a completed TestResult, fetch one back by id, and — a feature
// the distillation's contract leaves out but the REST surface needs — list
// the most recent basic results for GET /api/test/history.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// History is a narrow addition to engine.Store: a queryable recent-results
// log. It's kept separate from engine.Store on purpose — the core only
// ever needs store/fetch (spec.md §6); history listing is consumed
// directly by the REST layer, never by the Orchestrator.
type History interface {
	Recent(ctx context.Context, limit int) ([]engine.BasicResult, error)
}

// MaxHistoryResults bounds GET /api/test/history (spec.md §6: "up to 20
// most recent basic results").
const MaxHistoryResults = 20

func marshalResult(r engine.TestResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("store: marshal result: %w", err)
	}
	return data, nil
}

func unmarshalResult(data []byte) (engine.TestResult, error) {
	var r engine.TestResult
	if err := json.Unmarshal(data, &r); err != nil {
		return engine.TestResult{}, fmt.Errorf("store: unmarshal result: %w", err)
	}
	return r, nil
}
