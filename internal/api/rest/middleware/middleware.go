// Package middleware holds the HTTP middleware chain wrapped around the
// REST surface (spec.md §6). internal/web installs the same chain on the
// websocket upgrade route; once upgraded, a test session's frames bypass it.
package middleware

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ozarkconnect/linkpulse/internal/logging"
)

type contextKey string

const (
	RequestIDKey contextKey = "request-id"
	StartTimeKey contextKey = "start-time"
)

// RequestID assigns (or propagates) a unique ID for each inbound request,
// echoed back on the response so a client and server log line can be
// correlated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging provides structured start/completion logging for every request.
func Logging(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			ctx := context.WithValue(r.Context(), StartTimeKey, startTime)

			logger.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(startTime)
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"request_id", GetRequestID(r.Context()),
			)
		})
	}
}

// MetricsCollector is the narrow surface the Metrics middleware needs;
// internal/monitoring's Prometheus recorder satisfies it.
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
}

// Metrics records per-request counters/histograms for the REST surface,
// separate from the engine's own test-stage metrics.
func Metrics(collector MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			collector.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(startTime))
		})
	}
}

// ErrorRecovery converts a panicking handler into a 500 instead of taking
// down the whole server.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				fmt.Printf("panic recovered: %v\n%s\n", err, stack)
				internalError(w, "An unexpected error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RateLimiting enforces a per-client-IP token bucket over the REST surface.
// Test sessions themselves aren't rate-limited here: a session already
// costs a concurrency-semaphore slot in the Orchestrator (spec.md §5).
func RateLimiting(next http.Handler) http.Handler {
	limiters := make(map[string]*rateLimiterEntry)
	var limitersMutex sync.Mutex

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			limitersMutex.Lock()
			cutoff := time.Now().Add(-5 * time.Minute)
			for ip, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, ip)
				}
			}
			limitersMutex.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		limitersMutex.Lock()
		entry, exists := limiters[clientIP]
		if !exists {
			entry = &rateLimiterEntry{limiter: rate.NewLimiter(100, 200)}
			limiters[clientIP] = entry
		}
		entry.lastSeen = time.Now()
		limitersMutex.Unlock()

		if !entry.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", "100")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Second).Unix()))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too Many Requests","message":"Rate limit exceeded","code":"RATE_LIMIT_EXCEEDED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CORS handles cross-origin access to the REST surface; the websocket
// upgrade has its own origin check (internal/web).
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Compression gzip-encodes responses for clients that advertise support.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := &gzipResponseWriter{ResponseWriter: w}
		defer gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		next.ServeHTTP(gz, r)
	})
}

// Timeout bounds how long a REST handler may run. It does not apply to the
// websocket upgrade, whose lifetime is the test's own Duration.
func Timeout(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()

			done := make(chan struct{})

			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				w.Write([]byte(`{"error":"Gateway Timeout","message":"Request timeout","code":"REQUEST_TIMEOUT"}`))
			}
		})
	}
}

// GetRequestID retrieves the request ID stashed by RequestID.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	parts := strings.Split(r.RemoteAddr, ":")
	return parts[0]
}

func internalError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(fmt.Sprintf(`{"error":"Internal Server Error","message":"%s","code":"INTERNAL_ERROR"}`, message)))
}

// responseWrapper captures the status code a handler wrote so Logging and
// Metrics can report it after ServeHTTP returns.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Hijack passes through to the underlying writer so a websocket upgrade
// behind Logging/Metrics can take over the connection.
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// gzipResponseWriter lazily wraps the underlying writer in a gzip.Writer on
// first Write, so handlers that never write a body don't pay for one.
type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.writer == nil {
		w.writer = gzip.NewWriter(w.ResponseWriter)
	}
	return w.writer.Write(b)
}

func (w *gzipResponseWriter) Close() error {
	if w.writer != nil {
		return w.writer.Close()
	}
	return nil
}
