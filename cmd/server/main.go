// Package main runs the token search server:
// - Feed: realtime trade and market-cap events into storage and the token index
// - Search: one-shot HTTP search and websocket search sessions
// - Ops: health, status and Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"token-find/internal/api"
	"token-find/internal/config"
	"token-find/internal/copytrade"
	"token-find/internal/domain"
	"token-find/internal/feed"
	"token-find/internal/recorder"
	"token-find/internal/search"
	"token-find/internal/session"
	"token-find/internal/storage"
	chstore "token-find/internal/storage/clickhouse"
	"token-find/internal/storage/memory"
	"token-find/internal/storage/migrations"
	pgstore "token-find/internal/storage/postgres"
)

// Server holds all components of the service.
type Server struct {
	cfg    *config.Config
	stores *stores
	index  *search.Index
	search search.SearchFunc[domain.TokenSummary]

	recorder *recorder.Recorder
	feed     *feed.Client[feed.Envelope]
	sessions *session.Server[domain.TokenSummary]
	logger   *log.Logger

	mu        sync.Mutex
	started   time.Time
	lastCopy  *copytrade.Decision
	copyCount int
}

// stores holds the storage implementations.
type stores struct {
	trades     storage.TradeStore
	marketCaps storage.MarketCapStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", os.Getenv("TOKENFIND_CONFIG"), "Path to YAML config file")
	feedURL := flag.String("feed-url", os.Getenv("TOKENFIND_FEED_URL"), "Realtime feed websocket URL")
	apiURL := flag.String("api-url", os.Getenv("TOKENFIND_API_URL"), "Analytics API base URL")
	httpAddr := flag.String("http-addr", "", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Flags and env override the file.
	if *feedURL != "" {
		cfg.Feed.URL = *feedURL
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}
	if *useMemory {
		cfg.Storage.UseMemory = true
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	st, cleanup, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server, err := NewServer(cfg, st, logger)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	done := make(chan error, 1)

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
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// loadConfig reads the config file, or starts from an empty config when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// NewServer wires the index, recorder, search backend and session server.
// The feed client is created by Run.
func NewServer(cfg *config.Config, st *stores, logger *log.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		stores:  st,
		index:   search.NewIndex(),
		logger:  logger,
		started: time.Now(),
	}

	engine, err := copytrade.NewEngine(cfg.CopyTrade.Rules...)
	if err != nil {
		return nil, fmt.Errorf("copytrade rules: %w", err)
	}

	s.recorder = recorder.New(recorder.Options{
		Trades:       st.trades,
		MarketCaps:   st.marketCaps,
		Index:        s.index,
		Engine:       engine,
		OnDecision:   s.recordDecision,
		WriteTimeout: cfg.Storage.WriteTimeout,
		Logger:       componentLogger("recorder"),
	})

	s.search = buildSearch(cfg, s.index, componentLogger(""))

	s.sessions, err = session.NewServer(session.Config[domain.TokenSummary]{
		Search:             s.search,
		MinQueryLength:     cfg.Search.MinQueryLength,
		MaxResults:         cfg.Search.MaxResults,
		Debounce:           cfg.Search.Debounce,
		ShowResultsOnFocus: cfg.Search.ShowResultsOnFocus,
		SendBuffer:         cfg.Search.SendBuffer,
		OnSelect: func(id string, r search.ScoredResult[domain.TokenSummary]) {
			logger.Printf("session %s selected %s (%s)", id, r.Item.Symbol, r.ID)
		},
		Logger: componentLogger("session"),
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// buildSearch returns the SearchFunc for the configured backend.
func buildSearch(cfg *config.Config, index *search.Index, logger *log.Logger) search.SearchFunc[domain.TokenSummary] {
	if cfg.Search.Backend == config.BackendLocal {
		return index.Search
	}

	opts := []api.ClientOption{}
	if cfg.API.Timeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.API.Timeout))
	}
	if cfg.API.MaxRetries > 0 {
		opts = append(opts, api.WithMaxRetries(cfg.API.MaxRetries))
	}
	if cfg.API.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst))
	}
	remote := search.RemoteTokenSearch(api.NewClient(cfg.API.BaseURL, opts...), cfg.Search.MaxResults)

	if cfg.Search.Backend == config.BackendRemoteWithFallback {
		return search.WithFallback(remote, index.Search, logger)
	}
	return remote
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		st := &stores{
			trades:     memory.NewTradeStore(),
			marketCaps: memory.NewMarketCapStore(),
		}
		return st, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Printf("Applied postgres migrations: %s", strings.Join(applied, ", "))
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	st := &stores{
		trades:     pgstore.NewTradeStore(pool),
		marketCaps: chstore.NewMarketCapStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return st, cleanup, nil
}

// Run seeds the index, connects the feed and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting server...")

	if err := s.seedIndex(ctx); err != nil {
		return fmt.Errorf("seed index: %w", err)
	}

	cc := s.cfg.FeedClientConfig()
	s.feed = feed.NewEnvelopeClient(s.cfg.Feed.URL, s.recorder.Handle, s.cfg.FeedOptions(), &cc, componentLogger(""))
	defer s.feed.Close()

	httpServer := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", s.cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Printf("HTTP shutdown: %v", err)
	}
	// Hijacked websocket connections are not tracked by http.Server.
	s.sessions.Shutdown()

	return runErr
}

// seedIndex replays recent stored trades into the token index, oldest first,
// so a restart does not start with an empty search.
func (s *Server) seedIndex(ctx context.Context) error {
	trades, err := s.stores.trades.GetRecent(ctx, s.cfg.Storage.ReplayLimit)
	if err != nil {
		return err
	}
	for i := len(trades) - 1; i >= 0; i-- {
		s.index.Upsert(*trades[i])
	}
	s.logger.Printf("Seeded index with %d tokens from %d trades", s.index.Len(), len(trades))
	return nil
}

func (s *Server) recordDecision(d copytrade.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCopy = &d
	s.copyCount++
}

// componentLogger returns a logger prefixed with [name]. The feed and search
// packages tag their own lines, so they get an empty name.
func componentLogger(name string) *log.Logger {
	prefix := ""
	if name != "" {
		prefix = "[" + name + "] "
	}
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lshortfile)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
