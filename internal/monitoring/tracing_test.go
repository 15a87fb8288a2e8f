package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracingProviderDisabledSkipsExporterSetup(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())
	assert.Nil(t, tp.Propagator())
}

func TestNewTracingProviderDefaultsServiceName(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceName, tp.config.ServiceName)
}

func TestStartSpanEndsWithoutErrorByDefault(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, end := tp.StartSpan(context.Background(), "test_session")
	require.NotNil(t, ctx)
	assert.NotPanics(t, func() { end(nil) })
}

func TestStartSpanRecordsError(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)

	_, end := tp.StartSpan(context.Background(), "test_stage:download")
	assert.NotPanics(t, func() { end(errors.New("transport lost")) })
}

func TestHTTPMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)

	called := false
	handler := tp.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceableHTTPClientFallsBackWhenDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)

	client := tp.TraceableHTTPClient()
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestShutdownIsSafeWithoutProvider(t *testing.T) {
	tp, err := NewTracingProvider(&TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
