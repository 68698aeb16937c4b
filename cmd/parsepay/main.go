// ParsePay - structured transaction fields from bank SMS.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/opensource-finance/parsepay/internal/api"
	"github.com/opensource-finance/parsepay/internal/bus"
	"github.com/opensource-finance/parsepay/internal/cache"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/extract"
	"github.com/opensource-finance/parsepay/internal/fallback"
	"github.com/opensource-finance/parsepay/internal/pipeline"
	"github.com/opensource-finance/parsepay/internal/repository"
	"github.com/opensource-finance/parsepay/internal/rules"
	"github.com/opensource-finance/parsepay/internal/tagger"
	"github.com/opensource-finance/parsepay/internal/velocity"
	"github.com/opensource-finance/parsepay/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("PARSEPAY_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	applyEnv(cfg)

	setupLogger(cfg.Logging)

	slog.Info("starting parsepay",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tagger", cfg.Extraction.TaggerURL != "",
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Sender velocity feeds the sender_count gate variable
	velocitySvc := velocity.NewService(repo, cacheImpl)

	// Initialize gate engine: built-in rules overlaid with stored ones
	engine, err := rules.NewEngine(velocitySvc.GetVelocityGetter(), cfg.Extraction.GateWorkers)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadGateRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load gate rules", "error", err)
		os.Exit(1)
	}
	gate := rules.NewGate(engine, cfg.Extraction.GateThreshold, int(cfg.Extraction.VelocityWindow/time.Second))
	slog.Info("classifier gate initialized",
		"rules_count", engine.RulesCount(),
		"threshold", gate.Threshold(),
	)

	// Field extraction: tagger first when configured, rules otherwise
	var taggerClient domain.Tagger
	if cfg.Extraction.TaggerURL != "" {
		taggerClient = tagger.NewClient(cfg.Extraction.TaggerURL, cfg.Extraction.TaggerTimeout)
		slog.Info("tagger client initialized", "url", cfg.Extraction.TaggerURL)
	}
	arbiter := fallback.NewArbiter(extract.New(extract.Options{}), taggerClient)

	loc, err := domain.LoadLocation(cfg.Extraction.Timezone)
	if err != nil {
		slog.Error("invalid extraction timezone", "error", err)
		os.Exit(1)
	}

	processor := pipeline.NewProcessor(pipeline.Options{
		Gate:      gate,
		Arbiter:   arbiter,
		Cache:     cacheImpl,
		RecordTTL: cfg.Cache.RecordTTL,
		Location:  loc,
	})

	// Initialize async Worker
	var asyncWorker *worker.Worker
	dispatchTenant := ""
	if os.Getenv("PARSEPAY_ASYNC_WORKER") != "false" {
		asyncWorker = worker.NewWorker(busImpl, repo, processor)

		tenantIDs := splitList(os.Getenv("PARSEPAY_TENANTS"))
		if len(tenantIDs) == 0 {
			dispatchTenant = worker.GlobalTenant
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, processor, Version, dispatchTenant)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("parsepay is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server so queued requests drain
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	slog.Info("parsepay shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// applyEnv overrides configuration from PARSEPAY_* environment variables.
func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("PARSEPAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("PARSEPAY_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("PARSEPAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v, ok := envInt("PARSEPAY_PORT"); ok {
		cfg.Server.Port = v
	}

	if v := os.Getenv("PARSEPAY_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("PARSEPAY_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v, ok := envInt("PARSEPAY_POSTGRES_PORT"); ok {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("PARSEPAY_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("PARSEPAY_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("PARSEPAY_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("PARSEPAY_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("PARSEPAY_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("PARSEPAY_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("PARSEPAY_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("PARSEPAY_TIMEZONE"); v != "" {
		cfg.Extraction.Timezone = v
	}
	if v := os.Getenv("PARSEPAY_TAGGER_URL"); v != "" {
		cfg.Extraction.TaggerURL = v
	}
	if v := os.Getenv("PARSEPAY_GATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Extraction.GateThreshold = f
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadGateRules loads the built-in gate rules, replaced or extended by
// rules stored through POST /gate-rules.
func loadGateRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListGateRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list gate rules from database", "error", err)
		stored = nil
	}
	if len(stored) > 0 {
		slog.Info("loading stored gate rules", "count", len(stored))
	}
	return engine.LoadRules(rules.MergeGateRules(rules.DefaultGateRules(), stored))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ParsePay - SMS transaction extraction")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /extract              - Extract fields from an SMS")
	fmt.Println("    POST   /messages             - Queue an SMS for async extraction")
	fmt.Println("    GET    /extractions/{id}     - Get extraction by ID")
	fmt.Println("    GET    /messages/{id}        - Get message and latest extraction")
	fmt.Println("    GET    /gate-rules           - List loaded gate rules")
	fmt.Println("    POST   /gate-rules           - Store a gate rule")
	fmt.Println("    DELETE /gate-rules/{id}      - Disable a stored gate rule")
	fmt.Println("    POST   /gate-rules/reload    - Hot-reload gate rules")
	fmt.Println("    GET    /health               - Health check")
	fmt.Println()
}
