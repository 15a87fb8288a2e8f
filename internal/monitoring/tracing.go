package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ozarkconnect/linkpulse/internal/engine"
)

const (
	// DefaultServiceName is the resource attribute reported to the trace
	// backend when TracingConfig.ServiceName is left blank.
	DefaultServiceName = "linkpulse-server"

	// SpanNameHTTPRequest names the span HTTPMiddleware opens per REST call.
	SpanNameHTTPRequest = "http_request"
	// SpanNameInsightsCall names the span wrapping the AI-insights collaborator.
	SpanNameInsightsCall = "insights_call"
	// SpanNameStoreOperation names spans around persistence reads/writes.
	SpanNameStoreOperation = "store_operation"
)

// TracingConfig controls whether and how spans are exported.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Environment  string
	SamplingRate float64
}

// TracingProvider owns the OpenTelemetry SDK setup and lifecycle. When
// Enabled is false it still hands out a usable no-exporting tracer, so
// callers never need to nil-check it.
type TracingProvider struct {
	config     *TracingConfig
	tracer     trace.Tracer
	provider   *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
}

// NewTracingProvider builds a TracingProvider. With config.Enabled false it
// skips exporter/resource/sampler setup entirely and returns a provider
// backed by the global no-op tracer.
func NewTracingProvider(config *TracingConfig) (*TracingProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if !config.Enabled {
		return &TracingProvider{
			config: config,
			tracer: otel.Tracer(config.ServiceName),
		}, nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	return &TracingProvider{
		config:     config,
		tracer:     provider.Tracer(config.ServiceName),
		provider:   provider,
		propagator: propagator,
	}, nil
}

// Tracer returns the underlying OpenTelemetry tracer.
func (tp *TracingProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Propagator returns the configured text-map propagator, or nil if tracing
// is disabled (no propagation is needed when nothing is exported).
func (tp *TracingProvider) Propagator() propagation.TextMapPropagator {
	return tp.propagator
}

// Shutdown flushes and stops the exporter. Safe to call even when tracing
// was never enabled.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan implements engine.Tracer: it opens a span named for a test
// session or one of its stages and returns a function that ends it,
// recording err (if any) as the span's terminal status. This is the
// adapter the Orchestrator calls through — it never imports OpenTelemetry
// directly.
func (tp *TracingProvider) StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	spanCtx, span := tp.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("service.name", tp.config.ServiceName),
	))
	return spanCtx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.Bool("error", true))
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

var _ engine.Tracer = (*TracingProvider)(nil)

// HTTPMiddleware traces each REST request, extracting any inbound trace
// context so a client's span can be correlated with the server's.
func (tp *TracingProvider) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tp.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := tp.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		spanCtx, span := tp.tracer.Start(ctx, SpanNameHTTPRequest,
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(r.Method),
				semconv.HTTPURLKey.String(r.URL.String()),
				semconv.HTTPTargetKey.String(r.URL.Path),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
			),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		wrapped := &tracingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		r = r.WithContext(spanCtx)

		next.ServeHTTP(wrapped, r)

		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(wrapped.statusCode),
			attribute.Int64("http.response.size", wrapped.size),
		)
		if wrapped.statusCode >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapped.statusCode))
		}
	})
}

type tracingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (w *tracingResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *tracingResponseWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.size += int64(n)
	return n, err
}

// StoreSpan opens a span around one persistence call (spec.md §6's store/
// fetch collaborator), tagged with the backend and operation name so a
// Redis miss and a Postgres scan show up distinctly in a trace.
func (tp *TracingProvider) StoreSpan(ctx context.Context, backend, operation string) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, SpanNameStoreOperation,
		trace.WithAttributes(
			attribute.String("store.backend", backend),
			attribute.String("store.operation", operation),
		),
	)
}

// InsightsCallSpan opens a client-kind span around a call to the
// AI-insights collaborator, which may be a remote HTTP service.
func (tp *TracingProvider) InsightsCallSpan(ctx context.Context) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, SpanNameInsightsCall, trace.WithSpanKind(trace.SpanKindClient))
}

// SetSpanError marks the span carried by ctx, if any, as failed.
func (tp *TracingProvider) SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Bool("error", true))
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// TraceableHTTPClient returns an http.Client whose RoundTripper injects the
// current trace context into outbound requests — for an insights.Analyzer
// backed by a remote scoring service.
func (tp *TracingProvider) TraceableHTTPClient() *http.Client {
	return &http.Client{
		Transport: &tracingTransport{base: http.DefaultTransport, provider: tp},
		Timeout:   30 * time.Second,
	}
}

type tracingTransport struct {
	base     http.RoundTripper
	provider *TracingProvider
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.provider.config.Enabled {
		return t.base.RoundTrip(req)
	}

	ctx, span := t.provider.tracer.Start(req.Context(), SpanNameInsightsCall,
		trace.WithAttributes(
			attribute.String("http.host", req.URL.Host),
			semconv.HTTPMethodKey.String(req.Method),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	t.provider.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	req = req.WithContext(ctx)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.provider.SetSpanError(ctx, err)
		return resp, err
	}

	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	return resp, nil
}

// DefaultTracingConfig returns development-friendly tracing settings:
// enabled, pointed at a local collector, fully sampled.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		Enabled:      true,
		OTLPEndpoint: "http://localhost:4318/v1/traces",
		ServiceName:  DefaultServiceName,
		Environment:  "development",
		SamplingRate: 1.0,
	}
}

// ProductionTracingConfig returns production-ready tracing settings: a
// cluster-local collector and a light sampling rate to bound export volume.
func ProductionTracingConfig() *TracingConfig {
	return &TracingConfig{
		Enabled:      true,
		OTLPEndpoint: "http://otel-collector:4318/v1/traces",
		ServiceName:  DefaultServiceName,
		Environment:  "production",
		SamplingRate: 0.05,
	}
}
