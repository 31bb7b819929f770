// Package main provides the unified feed server:
// - SSE ingestion (continuous): bulk snapshots and single-token merges
// - Realtime subscription (continuous): INSERT/UPDATE/DELETE events
// - HTTP surface: health, metrics, status, snapshot and feed re-export
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"launchfeed/internal/domain"
	"launchfeed/internal/ingest"
	"launchfeed/internal/observability"
	"launchfeed/internal/publish"
	"launchfeed/internal/storage"
	chstore "launchfeed/internal/storage/clickhouse"
	"launchfeed/internal/storage/memory"
	"launchfeed/internal/storage/migrations"
	pgstore "launchfeed/internal/storage/postgres"
	"launchfeed/internal/transform"
)

// Server holds all components of the feed service.
type Server struct {
	// Configuration
	sseEndpoint string
	wsEndpoint  string

	// Components
	store  *memory.TokenStore
	runner *ingest.Runner
	sse    *ingest.SSEController
	sub    *ingest.SubscriptionController
	logger *log.Logger

	started time.Time
}

// sinks holds the optional durable destinations for consumed changes.
type sinks struct {
	archive   storage.TokenArchiveStore
	metrics   storage.MetricPointStore
	publisher *publish.KafkaPublisher
}

func main() {
	// Load .env file if exists; system env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	sseEndpoint := flag.String("sse-endpoint", os.Getenv("SSE_ENDPOINT"), "Token feed SSE endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("WS_ENDPOINT"), "Realtime subscription WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the token archive (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for metric points (optional)")
	kafkaBrokers := flag.String("kafka-brokers", os.Getenv("KAFKA_BROKERS"), "Comma-separated Kafka broker addresses (optional)")
	kafkaTopic := flag.String("kafka-topic", envOr("KAFKA_TOPIC", "launchfeed.changes"), "Kafka topic for change messages")
	httpAddr := flag.String("http-addr", ":8080", "HTTP listen address")
	workers := flag.Int("transform-workers", 0, "Batch transform workers (0 = GOMAXPROCS)")
	maxRetries := flag.Int("max-retries", 5, "Consecutive SSE connection failures before giving up (-1 = retry forever)")
	captureFile := flag.String("capture-file", "", "Append raw SSE events to this file for later replay")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *sseEndpoint == "" && *wsEndpoint == "" {
		logger.Fatal("at least one of --sse-endpoint or --ws-endpoint is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Connect optional sinks and run migrations
	snk, cleanup, err := createSinks(ctx, *postgresDSN, *clickhouseDSN, *kafkaBrokers, *kafkaTopic, logger)
	if err != nil {
		logger.Fatalf("Failed to create sinks: %v", err)
	}
	defer cleanup()

	// Raw event capture for the replay tool
	var rawWriter io.Writer
	if *captureFile != "" {
		f, err := os.OpenFile(*captureFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Fatalf("Failed to open capture file: %v", err)
		}
		defer f.Close()
		rawWriter = f
		logger.Printf("Capturing raw events to %s", *captureFile)
	}

	store := memory.NewTokenStore(log.New(os.Stdout, "[store] ", log.LstdFlags))

	pool := transform.NewPool(transform.PoolOptions{
		Workers: *workers,
		Logger:  log.New(os.Stdout, "[transform] ", log.LstdFlags),
	})
	defer pool.Stop()

	runner := ingest.NewRunner(ingest.RunnerOptions{
		Store:       store,
		Transformer: pool,
		Archive:     snk.archive,
		Metrics:     snk.metrics,
		Publisher:   snk.publisher,
		Logger:      log.New(os.Stdout, "[ingestion] ", log.LstdFlags),
	})

	server := &Server{
		sseEndpoint: *sseEndpoint,
		wsEndpoint:  *wsEndpoint,
		store:       store,
		runner:      runner,
		logger:      logger,
		started:     time.Now(),
	}

	if *sseEndpoint != "" {
		server.sse = ingest.NewSSEController(ingest.SSEOptions{
			Endpoint:   *sseEndpoint,
			MaxRetries: *maxRetries,
			RawWriter:  rawWriter,
			Logger:     log.New(os.Stdout, "[sse] ", log.LstdFlags),
		}, runner)
	}
	if *wsEndpoint != "" {
		server.sub = ingest.NewSubscriptionController(ingest.SubscriptionOptions{
			Endpoint: *wsEndpoint,
			Logger:   log.New(os.Stdout, "[subscription] ", log.LstdFlags),
		}, runner)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run ingestion
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// envOr returns the env var value or a fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// createSinks connects the optional durable sinks. Each sink is independent:
// an empty DSN just leaves it nil and the runner skips it.
func createSinks(ctx context.Context, postgresDSN, clickhouseDSN, kafkaBrokers, kafkaTopic string, logger *log.Logger) (*sinks, func(), error) {
	snk := &sinks{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		snk.archive = pgstore.NewTokenArchiveStore(pool)
		logger.Println("Token archive enabled (postgres)")
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		snk.metrics = chstore.NewMetricPointStore(conn)
		logger.Println("Metric point history enabled (clickhouse)")
	}

	if kafkaBrokers != "" {
		brokers := splitList(kafkaBrokers)
		publisher := publish.NewKafkaPublisher(publish.KafkaOptions{
			Brokers: brokers,
			Topic:   kafkaTopic,
			Logger:  log.New(os.Stdout, "[publish] ", log.LstdFlags),
		})
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Printf("Kafka writer close error: %v", err)
			}
		})
		snk.publisher = publisher
		logger.Printf("Change publishing enabled (kafka topic %s)", kafkaTopic)
	}

	return snk, cleanup, nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Run starts the configured ingestion paths and blocks until the context is
// cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting feed server...")

	errCh := make(chan error, 2)

	if s.sse != nil {
		go func() {
			err := s.sse.Run(ctx)
			if err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("sse ingestion: %w", err)
			}
		}()
		s.logger.Printf("SSE ingestion started (%s)", s.sseEndpoint)
	}

	if s.sub != nil {
		go func() {
			err := s.sub.Run(ctx)
			if err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("subscription: %w", err)
			}
		}()
		s.logger.Printf("Realtime subscription started (%s)", s.wsEndpoint)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status/feed.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/feed", s.handleFeed)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	SSEState string            `json:"sse_state,omitempty"`
	Store    domain.StoreStats `json:"store"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).String(),
		Store:  s.store.Stats(),
	}
	if s.sse != nil {
		resp.SSEState = s.sse.State()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleSnapshot returns the current feed contents as one JSON document.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

// handleFeed re-exports the feed as an SSE stream: the current snapshot on
// connect, then one event per store update. A subscriber that cannot keep
// up skips intermediate snapshots rather than stalling the store.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan struct{}, 1)
	unsubscribe := s.store.Subscribe(func(tokens []*domain.Token) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	write := func() bool {
		payload, err := json.Marshal(s.snapshot())
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-updates:
			if !write() {
				return
			}
		}
	}
}

// snapshot builds the exposed collection snapshot from store state.
func (s *Server) snapshot() domain.FeedSnapshot {
	tokens := s.store.GetTokens()
	return domain.FeedSnapshot{
		Event:             "tokens",
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
		TokenCount:        len(tokens),
		Data:              tokens,
		LastSSEUpdate:     s.store.LastUpdate(),
		BackendTotalCount: len(tokens),
	}
}
