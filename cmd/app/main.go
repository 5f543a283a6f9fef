// File: cmd/app/main.go
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
	"syscall"
	"time"

	"clipcompare/internal/config"
	"clipcompare/internal/domain/ports/adapter"
	"clipcompare/internal/domain/ports/store"
	"clipcompare/internal/infra/adapters/analysis"
	"clipcompare/internal/infra/logging"
	"clipcompare/internal/infra/metrics"
	"clipcompare/internal/infra/probe"
	"clipcompare/internal/infra/sched"
	"clipcompare/internal/infra/store/memory"
	"clipcompare/internal/infra/store/redisstore"
	"clipcompare/internal/infra/web"
	"clipcompare/internal/infra/worker"
	"clipcompare/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop analyzer, no auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		if !*devMode {
			log.Fatalf("config: %v", err)
		}
		// dev mode runs fine on defaults
		cfg = config.Default()
		cfg.Runtime.Dev = true
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Job store ----
	var jobStore store.JobStore
	switch cfg.Store.Backend {
	case "redis":
		client, err := redisstore.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer client.Close()
		jobStore = redisstore.NewJobStore(client, cfg.Compare.Retention, logger)
	default:
		jobStore = memory.NewJobStore(logger)
	}

	// ---- Analysis client ----
	analyzer, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("analyzer")
	}
	analyzer = analysis.NewLimitedAnalyzer(analyzer, cfg.AI.ConcurrentLimit)

	var prober adapter.Prober
	if cfg.Runtime.Dev {
		prober = probe.NewStatProbe()
	} else {
		prober = probe.NewFFProbe()
	}

	// ---- Scheduler and use case ----
	scheduler := worker.NewScheduler(jobStore, analyzer, cfg.Compare.Concurrency, cfg.Compare.TaskTimeout, logger)
	compareUC := usecase.NewComparisonUseCase(
		ctx, jobStore, prober, scheduler,
		cfg.Compare.MaxClipDuration, cfg.Compare.MaxAutoRetries, logger,
	)

	// ---- Retention cleanup ----
	cleanup := sched.NewCleanupWorker(cfg.Compare.CleanupInterval, cfg.Compare.Retention, jobStore, logger)
	go func() {
		if err := cleanup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("cleanup worker stopped")
		}
	}()

	// ---- HTTP server ----
	apiKey := cfg.Server.APIKey
	if cfg.Runtime.Dev {
		apiKey = ""
	}
	server := web.NewServer(compareUC, apiKey, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

func buildAnalyzer(ctx context.Context, cfg *config.Config) (adapter.Analyzer, error) {
	if cfg.Runtime.Dev {
		return analysis.NewNoopAnalyzer(), nil
	}
	switch cfg.AI.Provider {
	case "openai":
		return analysis.NewOpenAIAnalyzer(cfg.AI.OpenAIKey, cfg.AI.OpenAIModel, cfg.Compare.MaxClipBytes)
	case "gemini":
		return analysis.NewGeminiAnalyzer(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel, cfg.AI.MaxOutputTokens, cfg.Compare.MaxClipBytes)
	case "noop":
		return analysis.NewNoopAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}
