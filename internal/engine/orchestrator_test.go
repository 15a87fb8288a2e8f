package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ozarkconnect/linkpulse/internal/insights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	stored map[string]TestResult
}

func newMemStore() *memStore { return &memStore{stored: make(map[string]TestResult)} }

func (m *memStore) Store(_ context.Context, r TestResult) error {
	m.stored[r.Basic.TestID] = r
	return nil
}

func (m *memStore) Fetch(_ context.Context, id string) (*TestResult, bool, error) {
	r, ok := m.stored[id]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func TestOrchestratorStartRejectsOutOfRangeDuration(t *testing.T) {
	o := NewOrchestrator("srv-1", 50, 1<<20, newMemStore(), insights.Noop{}, nil, nil)

	_, err := o.Start(StartConfig{Duration: 4999 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, InvalidConfig, KindOf(err))
}

func TestOrchestratorStartAcceptsMinimumDuration(t *testing.T) {
	o := NewOrchestrator("srv-1", 50, 1<<20, newMemStore(), insights.Noop{}, nil, nil)

	session, err := o.Start(StartConfig{Duration: MinDuration})
	require.NoError(t, err)
	assert.Equal(t, StageInitializing, session.Stage())
	<-o.sem // drain the slot Start acquired so the test doesn't leak it
}

func TestOrchestratorStartEnforcesConcurrencyCap(t *testing.T) {
	o := NewOrchestrator("srv-1", 1, 1<<20, newMemStore(), insights.Noop{}, nil, nil)

	_, err := o.Start(StartConfig{Duration: MinDuration})
	require.NoError(t, err)

	_, err = o.Start(StartConfig{Duration: MinDuration})
	require.Error(t, err)
	assert.Equal(t, ResourceExhausted, KindOf(err))
}

func TestOrchestratorRunEndToEndProducesResults(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator("srv-1", 50, 200<<20, store, insights.Noop{}, nil, nil)

	session, err := o.Start(StartConfig{Duration: MinDuration, Flags: Flags{}, ClientAddr: "10.0.0.5"})
	require.NoError(t, err)

	transport := newFakeTransport()
	go func() {
		// Keep the upload stage fed so the Driver has bytes to count.
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; i < 400; i++ {
			<-ticker.C
			transport.feedUpload(4096)
		}
	}()

	ctx := context.Background()
	result, err := o.Run(ctx, session, transport)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StageComplete, session.Stage())
	assert.Equal(t, session.ID, result.Basic.TestID)
	require.NotNil(t, result.UseCaseScores)
	require.NotNil(t, result.LoadedLatency)

	stored, ok, err := store.Fetch(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Basic.TestID, stored.Basic.TestID)

	sawResults := false
	for _, fr := range transport.sentFrames() {
		if fr.Type().String() == "Results" {
			sawResults = true
		}
	}
	assert.True(t, sawResults, "expected a Results frame on success")
}

func TestOrchestratorRunReportsTransportLostWhenClosedEarly(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator("srv-1", 50, 200<<20, store, insights.Noop{}, nil, nil)

	session, err := o.Start(StartConfig{Duration: MinDuration})
	require.NoError(t, err)

	transport := newFakeTransport()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = transport.Close()
	}()

	ctx := context.Background()
	result, err := o.Run(ctx, session, transport)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, TransportLost, KindOf(err))

	_, ok, _ := store.Fetch(ctx, session.ID)
	assert.False(t, ok, "no result should be persisted for a transport that closed mid-test")
}
