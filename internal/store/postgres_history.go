package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// PostgresHistory is a queryable basic-results log, supplementing the
// single-KV-store contract (spec.md §6) the way the teacher's PostgreSQL
// repositories supplement its Redis cache: Redis (or MemoryStore) remains
// the primary store/fetch path for a single TestResult; PostgresHistory
// exists only to back GET /api/test/history's ordered, queryable listing.
type PostgresHistory struct {
	db *sql.DB
}

// NewPostgresHistory wraps an already-opened *sql.DB. Callers own the
// connection pool's lifecycle.
func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// EnsureSchema creates the backing table if it doesn't already exist.
func (p *PostgresHistory) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS test_results (
	test_id      TEXT PRIMARY KEY,
	server_id    TEXT NOT NULL,
	down_mbps    DOUBLE PRECISION NOT NULL,
	up_mbps      DOUBLE PRECISION NOT NULL,
	latency_ms   DOUBLE PRECISION NOT NULL,
	jitter_ms    DOUBLE PRECISION NOT NULL,
	duration_sec DOUBLE PRECISION NOT NULL,
	client_addr  TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS test_results_recorded_at_idx ON test_results (recorded_at DESC);
`
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Record appends one basic result to the history log. Called alongside
// (not instead of) the primary Store call — PostgresHistory never backs
// Fetch by test id, only the recent-results listing.
func (p *PostgresHistory) Record(ctx context.Context, r engine.BasicResult) error {
	const q = `
INSERT INTO test_results (test_id, server_id, down_mbps, up_mbps, latency_ms, jitter_ms, duration_sec, client_addr, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (test_id) DO NOTHING`

	_, err := p.db.ExecContext(ctx, q,
		r.TestID, r.ServerID, r.DownMbps, r.UpMbps, r.LatencyMs, r.JitterMs, r.DurationSec, r.ClientAddr, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: record history: %w", err)
	}
	return nil
}

// Recent returns up to limit basic results ordered by recency.
func (p *PostgresHistory) Recent(ctx context.Context, limit int) ([]engine.BasicResult, error) {
	const q = `
SELECT test_id, server_id, down_mbps, up_mbps, latency_ms, jitter_ms, duration_sec, client_addr, recorded_at
FROM test_results
ORDER BY recorded_at DESC
LIMIT $1`

	rows, err := p.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer rows.Close()

	var out []engine.BasicResult
	for rows.Next() {
		var r engine.BasicResult
		var recordedAt time.Time
		if err := rows.Scan(&r.TestID, &r.ServerID, &r.DownMbps, &r.UpMbps, &r.LatencyMs, &r.JitterMs, &r.DurationSec, &r.ClientAddr, &recordedAt); err != nil {
			return nil, fmt.Errorf("store: scan history row: %w", err)
		}
		r.Timestamp = recordedAt
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history rows: %w", err)
	}
	return out, nil
}
