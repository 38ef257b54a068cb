// FraudLens - Fraud-risk scoring for payment transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudlens/internal/api"
	"github.com/opensource-finance/fraudlens/internal/artifact"
	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/config"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/intake"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/pipeline"
	"github.com/opensource-finance/fraudlens/internal/repository"
	"github.com/opensource-finance/fraudlens/internal/telemetry"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	demo := flag.Bool("demo", false, "Serve built-in demo artifacts instead of trained ones")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting fraudlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"variant", cfg.Variant,
		"threshold", cfg.Threshold,
		"artifacts", cfg.Artifacts.Source,
		"repository", cfg.Repository.Driver,
		"eventbus", cfg.EventBus.Type,
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

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize Repository
	var repo *repository.SQLRepository
	if cfg.Repository.Driver != "none" {
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)

		if cfg.Metrics.Enabled {
			go metrics.StartDBStatsCollector(ctx, repo.DB(), 15*time.Second)
		}
	}

	// Load artifacts once; the service cannot score without them.
	src, closeSource, err := artifactSource(cfg, repo, *demo)
	if err != nil {
		slog.Error("failed to open artifact source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	loadStart := time.Now()
	reg, err := artifact.NewLoader(src, cfg.Variant).Registry(ctx)
	metrics.ArtifactLoadDuration.Observe(time.Since(loadStart).Seconds())
	if err != nil {
		var loadErr *domain.ArtifactLoadError
		if errors.As(err, &loadErr) {
			slog.Error("failed to load artifacts", "artifact", loadErr.Artifact, "error", loadErr.Err)
		} else {
			slog.Error("failed to load artifacts", "error", err)
		}
		os.Exit(1)
	}

	orchestrator, err := pipeline.New(reg, cfg.Threshold, logger)
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("pipeline initialized",
		"variant", orchestrator.Variant(),
		"width", len(orchestrator.Columns()),
		"threshold", orchestrator.Threshold(),
	)

	questionnaire, err := intake.New()
	if err != nil {
		slog.Error("failed to initialize questionnaire intake", "error", err)
		os.Exit(1)
	}

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	failures, err := bus.WatchFailures(ctx, busImpl, logger)
	if err != nil {
		slog.Error("failed to watch prediction failures", "error", err)
		os.Exit(1)
	}
	defer failures.Close()

	var auditRepo domain.Repository
	if repo != nil {
		auditRepo = repo
	}

	handler := api.NewHandler(orchestrator, questionnaire, auditRepo, busImpl, Version)
	srv := api.NewServer(cfg.Server, cfg.Metrics, handler)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudlens is ready",
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
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("fraudlens shutdown complete")
}

// artifactSource opens the configured artifact store. The returned close
// function is always safe to call.
func artifactSource(cfg *domain.Config, repo *repository.SQLRepository, demo bool) (artifact.Source, func(), error) {
	noop := func() {}

	if demo {
		src, err := artifact.DemoArtifacts(cfg.Variant)
		if err != nil {
			return nil, noop, err
		}
		slog.Warn("serving demo artifacts; predictions are not meaningful")
		return src, noop, nil
	}

	switch cfg.Artifacts.Source {
	case "file":
		return artifact.NewDirSource(cfg.Artifacts.Dir), noop, nil
	case "sql":
		if repo == nil {
			return nil, noop, fmt.Errorf("sql artifact source requires a repository")
		}
		return artifact.NewSQLSource(repo), noop, nil
	case "redis":
		src, err := artifact.NewRedisSource(cfg.Artifacts.RedisAddr, cfg.Artifacts.RedisPassword, cfg.Artifacts.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return src, func() { src.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported artifact source: %s", cfg.Artifacts.Source)
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               FRAUDLENS                   ║")
	fmt.Println("  ║        Fraud-Risk Scoring Engine          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:   %s\n", version)
	fmt.Printf("  Variant:   %s\n", cfg.Variant)
	fmt.Printf("  Threshold: %.2f\n", cfg.Threshold)
	fmt.Printf("  Server:    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score raw transaction attributes")
	fmt.Println("    POST /questionnaire     - Score questionnaire answers")
	fmt.Println("    GET  /predictions       - List recent predictions")
	fmt.Println("    GET  /predictions/{id}  - Get prediction by ID")
	fmt.Println("    GET  /schema            - Active feature schema")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
