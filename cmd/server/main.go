package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/api"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/config"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/llm"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/mineru"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/review"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize clients.
	extractor := mineru.NewClient(mineru.Options{
		BaseURL:        cfg.MinerUBaseURL,
		APIKey:         cfg.MinerUAPIKey,
		ModelVersion:   cfg.MinerUModelVersion,
		PollInterval:   cfg.MinerUPollInterval,
		MaxWait:        cfg.MinerUMaxWait,
		CacheDir:       cfg.MinerUCacheDir,
		CacheArtifacts: cfg.MinerUCacheArtifacts,
	}, log)
	reviewer := llm.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel)

	// Initialize pipeline.
	pipeline := review.NewPipeline(extractor, reviewer, review.Options{
		ChunkSize:       cfg.Pagination,
		BBoxOrigin:      cfg.BBoxOrigin,
		BBoxUnits:       cfg.BBoxUnits,
		ContentCoverage: cfg.BBoxContentCoverage,
	}, log)

	// Initialize HTTP server.
	srv := api.NewServer(pipeline, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Review responses stream for as long as the LLM pass runs.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		extractor.Close()
	}()

	log.Info("starting review service", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
