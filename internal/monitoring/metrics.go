// Package monitoring exposes the server's Prometheus metrics: REST traffic
// (satisfying internal/api/rest/middleware.MetricsCollector) and test-stage
// metrics (satisfying internal/engine.MetricsRecorder), adapted from the
// teacher's MetricsCollector.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

// Collector holds every Prometheus instrument the server reports.
type Collector struct {
	registry *prometheus.Registry

	// Test-session metrics (engine.MetricsRecorder)
	testsStartedTotal   prometheus.Counter
	testsFinishedTotal  *prometheus.CounterVec
	testDurationSeconds *prometheus.HistogramVec
	stageDurationSeconds *prometheus.HistogramVec
	activeTests         prometheus.Gauge

	// HTTP metrics (middleware.MetricsCollector)
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Process metrics
	memoryUsageBytes prometheus.Gauge
	goroutineCount   prometheus.Gauge
}

// NewCollector builds a Collector with its own registry and starts the
// background process-metrics sampler.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		testsStartedTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "linkpulse_tests_started_total",
			Help: "Total number of measurement tests admitted by the orchestrator.",
		}),

		testsFinishedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_tests_finished_total",
			Help: "Total number of measurement tests that reached a terminal stage.",
		}, []string{"stage", "outcome"}),

		testDurationSeconds: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpulse_test_duration_seconds",
			Help:    "Wall-clock duration of a full test run, by outcome.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"outcome"}),

		stageDurationSeconds: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpulse_stage_duration_seconds",
			Help:    "Duration of one test stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		activeTests: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "linkpulse_active_tests",
			Help: "Number of tests currently admitted under the concurrency cap.",
		}),

		httpRequestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_http_requests_total",
			Help: "Total number of REST requests processed.",
		}, []string{"method", "path", "status_code"}),

		httpRequestDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpulse_http_request_duration_seconds",
			Help:    "REST request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),

		memoryUsageBytes: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "linkpulse_memory_usage_bytes",
			Help: "Current heap allocation in bytes.",
		}),

		goroutineCount: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "linkpulse_goroutines",
			Help: "Current number of goroutines.",
		}),
	}

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	go c.collectProcessMetrics()

	return c
}

// TestStarted implements engine.MetricsRecorder.
func (c *Collector) TestStarted() {
	c.testsStartedTotal.Inc()
	c.activeTests.Inc()
}

// TestFinished implements engine.MetricsRecorder.
func (c *Collector) TestFinished(stage engine.Stage, err error, elapsed time.Duration) {
	c.activeTests.Dec()
	outcome := "success"
	if err != nil {
		outcome = string(engine.KindOf(err))
	}
	c.testsFinishedTotal.WithLabelValues(stage.String(), outcome).Inc()
	c.testDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// StageDuration implements engine.MetricsRecorder.
func (c *Collector) StageDuration(stage engine.Stage, elapsed time.Duration) {
	c.stageDurationSeconds.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
}

// RecordHTTPRequest implements middleware.MetricsCollector.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := fmt.Sprintf("%d", statusCode)
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) collectProcessMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		c.memoryUsageBytes.Set(float64(m.Alloc))
		c.goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

// Handler returns the /metrics scrape endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Server serves /metrics on its own listener, separate from the main REST
// server (the teacher's pattern: metrics shouldn't share a port with
// traffic that might be rate-limited or load-balanced differently).
type Server struct {
	collector *Collector
	server    *http.Server
	mu        sync.Mutex
}

// NewServer builds a standalone metrics HTTP server bound to addr.
func NewServer(addr string, collector *Collector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	return &Server{
		collector: collector,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start runs the metrics server in a background goroutine.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server.Shutdown(ctx)
}
