package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
	"github.com/ozarkconnect/linkpulse/internal/config"
	"github.com/ozarkconnect/linkpulse/internal/engine"
	"github.com/ozarkconnect/linkpulse/internal/insights"
	"github.com/ozarkconnect/linkpulse/internal/logging"
	"github.com/ozarkconnect/linkpulse/internal/monitoring"
	"github.com/ozarkconnect/linkpulse/internal/store"
	"github.com/ozarkconnect/linkpulse/internal/web"
)

const version = "0.1.0"

func main() {
	log.Println("🚀 Starting linkpulse-server")

	cfg, err := config.Load(os.Getenv("LINKPULSE_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	logger := logging.NewStdLogger(cfg.Verbose)
	logger.Info("configuration loaded", "server_id", cfg.ServerID, "bind_address", cfg.BindAddress, "store_backend", cfg.StoreBackend)

	log.Println("🔧 Initializing infrastructure components...")

	resultStore, historyLog, closeStore := initStore(cfg, logger)
	defer closeStore()
	log.Println("✅ Persistence layer ready")

	tracingProvider, err := monitoring.NewTracingProvider(&monitoring.TracingConfig{
		Enabled:      cfg.OTLPEndpoint != "",
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  monitoring.DefaultServiceName,
		Environment:  envOrDefault("LINKPULSE_ENVIRONMENT", "development"),
		SamplingRate: 1.0,
	})
	if err != nil {
		log.Printf("⚠️  Failed to initialize tracing, continuing without it: %v", err)
		tracingProvider, _ = monitoring.NewTracingProvider(&monitoring.TracingConfig{Enabled: false, ServiceName: monitoring.DefaultServiceName})
	}
	log.Println("✅ Tracing provider initialized")

	collector := monitoring.NewCollector()
	metricsServer := monitoring.NewServer(":9090", collector)
	metricsServer.Start()
	log.Println("✅ Metrics server listening on :9090")

	var analyzer insights.Analyzer
	if cfg.AIInsightsURL != "" {
		httpAnalyzer := insights.NewHTTPAnalyzer(cfg.AIInsightsURL)
		httpAnalyzer.Client = tracingProvider.TraceableHTTPClient()
		analyzer = httpAnalyzer
		log.Println("✅ AI-insights analyzer wired to", cfg.AIInsightsURL)
	} else {
		analyzer = insights.Noop{}
		log.Println("⚠️  No LINKPULSE_AI_INSIGHTS_URL configured, insights requests will degrade gracefully")
	}

	orchestrator := engine.NewOrchestrator(cfg.ServerID, cfg.MaxConcurrentTests, cfg.MaxSessionBytes, resultStore, analyzer, collector, logger)
	orchestrator.SetTracer(tracingProvider)
	log.Println("✅ Test orchestrator initialized")

	registry := web.NewRegistry()
	servers := []rest.ServerDescriptor{
		{ID: cfg.ServerID, Name: cfg.ServerName, Location: envOrDefault("LINKPULSE_LOCATION", "unspecified"), WebsocketURL: "/ws/enhanced"},
	}
	handlers := rest.NewHandlers(orchestrator, registry, resultStore, historyLog, servers, version, logger)
	router := web.NewRouter(handlers, orchestrator, registry, collector, logger, []string{"*"})
	log.Println("✅ HTTP routes registered")

	srv := &http.Server{
		Addr:         cfg.BindAddress,
		Handler:      tracingProvider.HTTPMiddleware(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 linkpulse-server listening on %s", cfg.BindAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Println("✅ linkpulse-server fully initialized and running!")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⏸️  Shutting down linkpulse-server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}
	if err := metricsServer.Stop(ctx); err != nil {
		log.Printf("⚠️  Metrics server shutdown error: %v", err)
	}
	if err := tracingProvider.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Tracing shutdown error: %v", err)
	}

	log.Println("👋 linkpulse-server shutdown complete")
}

// initStore builds the primary Store/Fetch backend (memory or Redis, per
// cfg.StoreBackend) and, if PostgresDSN is configured and reachable, layers
// a durable Postgres history log on top for GET /api/test/history. Returns
// a cleanup function that closes whatever connections were opened.
func initStore(cfg *config.Config, logger logging.Logger) (engine.Store, store.History, func()) {
	var (
		primary engine.Store
		history store.History
		closers []func()
	)

	switch cfg.StoreBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Invalid Redis URL: %v", err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		redisStore := store.NewRedisStore(client, cfg.ServerID, 7*24*time.Hour)
		primary, history = redisStore, redisStore
		closers = append(closers, func() { client.Close() })
		log.Println("✅ Redis store connected")
	default:
		memStore := store.NewMemoryStore()
		primary, history = memStore, memStore
		log.Println("✅ In-memory store initialized")
	}

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			logger.Warn("failed to open postgres history log, continuing without it", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := db.PingContext(ctx)
			cancel()
			if pingErr != nil {
				logger.Warn("postgres unreachable, continuing without durable history", "error", pingErr)
				db.Close()
			} else {
				pgHistory := store.NewPostgresHistory(db)
				if err := pgHistory.EnsureSchema(context.Background()); err != nil {
					logger.Warn("failed to ensure postgres schema, continuing without it", "error", err)
					db.Close()
				} else {
					primary = &historyRecordingStore{primary: primary, history: pgHistory}
					history = pgHistory
					closers = append(closers, func() { db.Close() })
					log.Println("✅ Postgres history log connected")
				}
			}
		}
	}

	return primary, history, func() {
		for _, c := range closers {
			c()
		}
	}
}

// historyRecordingStore wraps a primary Store so every completed result is
// also appended to the durable Postgres history log, without making
// PostgresHistory itself responsible for the primary store/fetch path
// (spec.md §6's single store/fetch collaborator stays simple; the durable
// log is purely additive).
type historyRecordingStore struct {
	primary engine.Store
	history *store.PostgresHistory
}

func (s *historyRecordingStore) Store(ctx context.Context, r engine.TestResult) error {
	if err := s.primary.Store(ctx, r); err != nil {
		return err
	}
	if err := s.history.Record(ctx, r.Basic); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (s *historyRecordingStore) Fetch(ctx context.Context, id string) (*engine.TestResult, bool, error) {
	return s.primary.Fetch(ctx, id)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
