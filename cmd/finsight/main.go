// FinSight orchestrator server — provides the HTTP orchestration API,
// manages the analysis worker pool, and coordinates multi-model agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finsight-ai/finsight/pkg/api"
	"github.com/finsight-ai/finsight/pkg/catalog"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/orchestrator"
	"github.com/finsight-ai/finsight/pkg/provider"
	"github.com/finsight-ai/finsight/pkg/provider/anthropic"
	"github.com/finsight-ai/finsight/pkg/provider/gateway"
	"github.com/finsight-ai/finsight/pkg/provider/openaicompat"
	"github.com/finsight-ai/finsight/pkg/routing"
	"github.com/finsight-ai/finsight/pkg/store"
	"github.com/finsight-ai/finsight/pkg/usage"
	"github.com/finsight-ai/finsight/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildAdapters constructs one adapter per provider with an API key in the
// environment. A provider without a key is skipped, not fatal.
func buildAdapters(cfg *config.Config) []provider.Adapter {
	var adapters []provider.Adapter

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		a, err := anthropic.New(key, cfg.ModelsForProvider(models.ProviderAnthropic))
		if err != nil {
			slog.Warn("Skipping anthropic adapter", "error", err)
		} else {
			adapters = append(adapters, a)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		a, err := openaicompat.New(key, os.Getenv("OPENAI_BASE_URL"),
			cfg.ModelsForProvider(models.ProviderOpenAI))
		if err != nil {
			slog.Warn("Skipping openai adapter", "error", err)
		} else {
			adapters = append(adapters, a)
		}
	}
	if key := os.Getenv("GATEWAY_API_KEY"); key != "" {
		a, err := gateway.New(key, os.Getenv("GATEWAY_BASE_URL"),
			cfg.ModelsForProvider(models.ProviderGateway))
		if err != nil {
			slog.Warn("Skipping gateway adapter", "error", err)
		} else {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// buildStore selects the persistence layout: Redis layered over the file
// fallback when REDIS_ADDR is set, the file store alone otherwise.
func buildStore(ctx context.Context, settings *config.Settings) (store.Store, error) {
	fileStore, err := store.NewFile(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open file store: %w", err)
	}
	if settings.RedisAddr == "" {
		slog.Info("Using file store", "dir", settings.DataDir)
		return fileStore, nil
	}

	redisStore, err := store.NewRedis(ctx, settings.RedisAddr, settings.RedisPassword, settings.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, falling back to file store",
			"addr", settings.RedisAddr, "error", err)
		return fileStore, nil
	}
	slog.Info("Using layered store", "redis_addr", settings.RedisAddr, "fallback_dir", settings.DataDir)
	return store.NewLayered(redisStore, fileStore), nil
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting FinSight", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the persistence store
	st, err := buildStore(ctx, cfg.Settings)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()

	// 3. Build provider adapters and the model catalog
	adapters := buildAdapters(cfg)
	if len(adapters) == 0 {
		slog.Error("No provider API keys configured; set at least one of " +
			"ANTHROPIC_API_KEY, OPENAI_API_KEY, GATEWAY_API_KEY")
		os.Exit(1)
	}
	catAdapters := make([]catalog.Adapter, len(adapters))
	for i, a := range adapters {
		catAdapters[i] = a
	}
	cat := catalog.New(catAdapters...)
	cat.StartProber(ctx, cfg.Settings.HealthProbeInterval)
	defer cat.Close()

	// 4. Wire routing, usage tracking, and the task manager
	tracker := usage.NewTracker(st)
	router := routing.New(cfg, st)
	mgr := manager.New(cfg, cat, router, tracker, adapters...)

	// 5. Start the orchestrator (recovers stale runs, launches workers)
	orch := orchestrator.New(cfg, st, cat, mgr, tracker)
	if err := orch.Start(ctx); err != nil {
		slog.Error("Failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// 6. Start the HTTP server (non-blocking)
	server := api.NewServer(orch)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Settings.HTTPPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("FinSight started successfully",
		"workers", cfg.Settings.MaxConcurrentTasks,
		"providers", len(adapters))

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then drain workers
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	orch.Close()

	slog.Info("Shutdown complete")
}
