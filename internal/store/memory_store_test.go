package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

func TestMemoryStoreStoreAndFetch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	result := engine.TestResult{Basic: engine.BasicResult{TestID: "t-1", DownMbps: 100}}
	require.NoError(t, s.Store(ctx, result))

	got, ok, err := s.Fetch(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Basic.DownMbps)
}

func TestMemoryStoreFetchMissingReturnsFalse(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.Fetch(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreRecentOrdersByTimestampDescending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		r := engine.TestResult{Basic: engine.BasicResult{TestID: id, Timestamp: base.Add(time.Duration(i) * time.Minute)}}
		require.NoError(t, s.Store(ctx, r))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].TestID)
	assert.Equal(t, "b", recent[1].TestID)
}

func TestMemoryStoreRecentCapsAtLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		_ = s.Store(ctx, engine.TestResult{Basic: engine.BasicResult{TestID: string(rune('a' + i)), Timestamp: time.Now()}})
	}

	recent, err := s.Recent(ctx, MaxHistoryResults)
	require.NoError(t, err)
	assert.Len(t, recent, MaxHistoryResults)
}
