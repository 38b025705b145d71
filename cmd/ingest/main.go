package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"afin/internal/config"
	"afin/internal/domain"
	"afin/internal/extract"
	ledgerpg "afin/internal/ledger/postgres"
	"afin/internal/logger"
	"afin/internal/pipeline"
	"afin/internal/reconcile"
	"afin/internal/staging/inmemory"
)

// One-shot ingestion: extract a local document and commit it straight into
// the ledger, skipping the review step the HTTP API offers.
func main() {
	log := logger.New()

	filePath := flag.String("file", "", "Path to the document to ingest (CSV, XLSX, PDF, image)")
	account := flag.String("account", "", "Ledger account to commit into")
	flag.Parse()

	if *filePath == "" || *account == "" {
		log.Fatal().Msg("Error: --file and --account are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Could not read file")
	}
	upload := domainUpload(*filePath, data)

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

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	defer pool.Close()

	ledgerStore := ledgerpg.NewStore(pool)
	if err := ledgerStore.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare ledger schema")
	}

	// A one-shot run never needs persistence between extract and commit.
	stagingStore := inmemory.NewStore()
	runner := pipeline.NewRunner(extractor, stagingStore, cfg.Pipeline.BatchSize, cfg.Pipeline.Pacing, log)

	const userID = "cli"
	report, err := runner.Run(ctx, userID, upload)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	if report.ChunksFailed > 0 {
		log.Warn().
			Int("failed", report.ChunksFailed).
			Int("total", report.ChunksTotal).
			Msg("Some chunks failed; their rows are missing")
	}

	rows, err := stagingStore.Read(ctx, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read extracted rows")
	}
	if len(rows) == 0 {
		fmt.Println("No transactions found.")
		return
	}

	engine := reconcile.NewEngine(ledgerStore, log)
	result, err := engine.Commit(ctx, *account, cfg.Ledger.DefaultAccountType, cfg.Ledger.DefaultCurrency, rows)
	if err != nil {
		log.Fatal().Err(err).
			Int("matched", result.Matched).
			Int("inserted", result.Inserted).
			Msg("Commit failed partway")
	}

	fmt.Printf("Done: %d matched, %d inserted into %q.\n", result.Matched, result.Inserted, *account)
}

func domainUpload(path string, data []byte) []domain.Upload {
	return []domain.Upload{{
		Filename:  filepath.Base(path),
		MediaType: mime.TypeByExtension(filepath.Ext(path)),
		Data:      data,
	}}
}
