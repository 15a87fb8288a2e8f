package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

func TestCollectorTracksActiveTests(t *testing.T) {
	c := NewCollector()

	c.TestStarted()
	assert.Equal(t, float64(1), testutilValue(t, c.activeTests))

	c.TestFinished(engine.StageComplete, nil, time.Second)
	assert.Equal(t, float64(0), testutilValue(t, c.activeTests))
}

func TestCollectorClassifiesFailureOutcome(t *testing.T) {
	c := NewCollector()
	c.TestStarted()

	c.TestFinished(engine.StageFailed, errors.New("boom"), 500*time.Millisecond)

	count := testutilCounterValue(t, c.testsFinishedTotal.WithLabelValues("failed", "internal"))
	assert.Equal(t, float64(1), count)
}

func TestCollectorRecordsHTTPRequests(t *testing.T) {
	c := NewCollector()
	c.RecordHTTPRequest("GET", "/api/health", 200, 10*time.Millisecond)

	count := testutilCounterValue(t, c.httpRequestsTotal.WithLabelValues("GET", "/api/health", "200"))
	assert.Equal(t, float64(1), count)
}

func TestCollectorHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c.Handler())
	require.NotNil(t, c.Registry())
}
