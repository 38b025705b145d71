package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"afin/internal/api/handlers"
	"afin/internal/api/middleware"
	"afin/internal/archive"
	"afin/internal/config"
	"afin/internal/extract"
	"afin/internal/ledger/postgres"
	"afin/internal/logger"
	"afin/internal/notify"
	"afin/internal/pipeline"
	"afin/internal/reconcile"
	stagingpg "afin/internal/staging/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.NewWithLevel(cfg.Logger.Level)

	ctx := context.Background()

	// Database
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	defer pool.Close()

	stagingStore := stagingpg.NewStore(pool)
	if err := stagingStore.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare staging schema")
	}
	ledgerStore := postgres.NewStore(pool)
	if err := ledgerStore.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare ledger schema")
	}

	// Extraction service
	extractor, err := extract.NewGemini(ctx, extract.GeminiOptions{
		APIKey:       cfg.Gemini.APIKey,
		Model:        cfg.Gemini.Model,
		PollInterval: cfg.Gemini.PollInterval,
		PollTimeout:  cfg.Gemini.PollTimeout,
		CallTimeout:  cfg.Gemini.CallTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	// Raw-upload archive
	var archiver archive.Archiver = archive.Disabled{}
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, cfg.Archive.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive client")
		}
		defer gcs.Close()
		archiver = gcs
	} else {
		log.Warn().Msg("No archive bucket configured - raw uploads will not be kept")
	}

	// Pipeline
	runner := pipeline.NewRunner(extractor, stagingStore, cfg.Pipeline.BatchSize, cfg.Pipeline.Pacing, log)
	notifier := notify.NewLogNotifier(log)
	coordinator := pipeline.NewCoordinator(runner, stagingStore, notifier, cfg.Pipeline.DebounceWindow, log)

	engine := reconcile.NewEngine(ledgerStore, log)

	// Handlers
	ingestHandler := handlers.NewIngestHandler(coordinator, archiver, cfg.Pipeline.MaxUploadBytes, log)
	reviewHandler := handlers.NewReviewHandler(stagingStore, engine, cfg.Ledger.DefaultAccountType, cfg.Ledger.DefaultCurrency, log)

	// Router
	r := mux.NewRouter()
	r.HandleFunc("/api/uploads", ingestHandler.Submit).Methods(http.MethodPost)
	r.HandleFunc("/api/pending", reviewHandler.Pending).Methods(http.MethodGet)
	r.HandleFunc("/api/pending/confirm", reviewHandler.Confirm).Methods(http.MethodPost)
	r.HandleFunc("/api/pending", reviewHandler.Discard).Methods(http.MethodDelete)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	// Apply middleware. RequestID runs before Logger so request log lines
	// carry the ID.
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(r),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
