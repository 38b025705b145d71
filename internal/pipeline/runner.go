// Package pipeline turns uploaded documents into staged transactions. The
// runner classifies each document, splits it into bounded chunks, extracts
// candidates chunk by chunk, normalizes them, and appends the result to the
// user's staging set. A failing chunk is reported, never fatal to the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"afin/internal/classify"
	"afin/internal/domain"
	"afin/internal/extract"
	"afin/internal/normalize"
	"afin/internal/staging"
	"afin/internal/tabular"
)

// DefaultPacing is the wait between consecutive extraction calls. It keeps
// a multi-chunk run inside the service's per-minute rate limits.
const DefaultPacing = time.Second

// RunReport summarizes one pipeline run over a set of uploads.
type RunReport struct {
	FilesProcessed int      `json:"files_processed"`
	RowsExtracted  int      `json:"rows_extracted"`
	ChunksTotal    int      `json:"chunks_total"`
	ChunksFailed   int      `json:"chunks_failed"`
	AccountHints   []string `json:"detected_account_hints,omitempty"`
}

// Runner executes ingestion runs.
type Runner struct {
	extractor extract.Extractor
	staging   staging.Store
	batchSize int
	pacing    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewRunner creates a pipeline runner. batchSize bounds the rows per
// extraction call; pacing spaces consecutive calls.
func NewRunner(extractor extract.Extractor, store staging.Store, batchSize int, pacing time.Duration, log zerolog.Logger) *Runner {
	if batchSize <= 0 {
		batchSize = tabular.DefaultBatchSize
	}
	if pacing < 0 {
		pacing = DefaultPacing
	}
	return &Runner{
		extractor: extractor,
		staging:   store,
		batchSize: batchSize,
		pacing:    pacing,
		log:       log,
		now:       time.Now,
	}
}

// Run processes the uploads for one user and appends every surviving row to
// the staging store. It returns a report even on error so callers can see
// how far the run got.
func (r *Runner) Run(ctx context.Context, userID string, uploads []domain.Upload) (RunReport, error) {
	report := RunReport{}
	y, m, d := r.now().Date()
	ingestedAt := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	hintSeen := map[string]bool{}

	for _, upload := range uploads {
		txs, hints, err := r.processUpload(ctx, upload, ingestedAt, &report)
		if err != nil {
			return report, fmt.Errorf("Run: process %s: %w", upload.Filename, err)
		}

		if err := r.staging.Append(ctx, userID, txs); err != nil {
			return report, fmt.Errorf("Run: stage %d rows from %s: %w", len(txs), upload.Filename, err)
		}
		report.FilesProcessed++
		report.RowsExtracted += len(txs)
		for _, h := range hints {
			key := strings.ToLower(h)
			if !hintSeen[key] {
				hintSeen[key] = true
				report.AccountHints = append(report.AccountHints, h)
			}
		}
	}

	r.log.Info().
		Str("user_id", userID).
		Int("files", report.FilesProcessed).
		Int("rows", report.RowsExtracted).
		Int("chunks_failed", report.ChunksFailed).
		Msg("Pipeline run finished")
	return report, nil
}

// processUpload extracts and normalizes one document. Errors returned here
// are infrastructure failures (context cancelled, staging down); extraction
// problems degrade to failed chunks inside the report.
func (r *Runner) processUpload(ctx context.Context, upload domain.Upload, ingestedAt time.Time, report *RunReport) ([]domain.Transaction, []string, error) {
	strategy := classify.Detect(upload.MediaType, upload.Filename)
	r.log.Debug().
		Str("file", upload.Filename).
		Str("strategy", string(strategy)).
		Int("bytes", len(upload.Data)).
		Msg("Classified upload")

	switch strategy {
	case classify.StrategyTabular:
		rows, err := tabular.ParseTable(upload.Data, upload.Filename, upload.MediaType)
		if errors.Is(err, tabular.ErrNotATable) {
			// Mislabeled upload; fall back to plain text.
			return r.runTextChunks(ctx, upload.Filename, textBlocks(string(upload.Data), r.batchSize), ingestedAt, report)
		}
		if err != nil {
			// Corrupt spreadsheet: one failed chunk, keep the run alive.
			r.log.Error().Err(err).Str("file", upload.Filename).Msg("Unreadable table")
			report.ChunksTotal++
			report.ChunksFailed++
			return nil, nil, nil
		}
		return r.runTableChunks(ctx, upload.Filename, rows, ingestedAt, report)

	case classify.StrategyNativeDocument:
		return r.runNativeDocument(ctx, upload, ingestedAt, report)

	default:
		return r.runTextChunks(ctx, upload.Filename, textBlocks(string(upload.Data), r.batchSize), ingestedAt, report)
	}
}

func (r *Runner) runTableChunks(ctx context.Context, filename string, rows [][]string, ingestedAt time.Time, report *RunReport) ([]domain.Transaction, []string, error) {
	var txs []domain.Transaction
	var hints []string

	it := tabular.NewIterator(rows, r.batchSize)
	for {
		batch, ok := it.Next()
		if !ok {
			break
		}
		if batch.Index > 0 {
			if err := r.pace(ctx); err != nil {
				return txs, hints, err
			}
		}

		source := chunkSource(filename, batch.Index)
		candidates, ok := r.extractChunk(ctx, source, func(ctx context.Context) (string, error) {
			return r.extractor.ExtractText(ctx, batch.Render())
		}, report)
		if !ok {
			continue
		}
		txs = append(txs, normalize.Normalize(candidates, source, ingestedAt)...)
		hints = append(hints, normalize.AccountHints(candidates)...)
	}
	return txs, hints, nil
}

func (r *Runner) runTextChunks(ctx context.Context, filename string, blocks []string, ingestedAt time.Time, report *RunReport) ([]domain.Transaction, []string, error) {
	var txs []domain.Transaction
	var hints []string

	for i, block := range blocks {
		if i > 0 {
			if err := r.pace(ctx); err != nil {
				return txs, hints, err
			}
		}

		source := chunkSource(filename, i)
		block := block
		candidates, ok := r.extractChunk(ctx, source, func(ctx context.Context) (string, error) {
			return r.extractor.ExtractText(ctx, block)
		}, report)
		if !ok {
			continue
		}
		txs = append(txs, normalize.Normalize(candidates, source, ingestedAt)...)
		hints = append(hints, normalize.AccountHints(candidates)...)
	}
	return txs, hints, nil
}

// runNativeDocument treats the whole file as one chunk; the extraction
// service paginates PDFs and images internally.
func (r *Runner) runNativeDocument(ctx context.Context, upload domain.Upload, ingestedAt time.Time, report *RunReport) ([]domain.Transaction, []string, error) {
	source := chunkSource(upload.Filename, 0)
	candidates, ok := r.extractChunk(ctx, source, func(ctx context.Context) (string, error) {
		return r.extractor.ExtractFile(ctx, upload.Data, upload.MediaType)
	}, report)
	if !ok {
		return nil, nil, nil
	}
	return normalize.Normalize(candidates, source, ingestedAt), normalize.AccountHints(candidates), nil
}

// extractChunk runs one extraction call, decoding its output and making at
// most one repair round-trip on malformed JSON. It returns ok=false when the
// chunk is lost; the report is updated either way.
func (r *Runner) extractChunk(ctx context.Context, source string, call func(ctx context.Context) (string, error), report *RunReport) ([]domain.Candidate, bool) {
	report.ChunksTotal++

	raw, err := call(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("chunk", source).Msg("Extraction call failed")
		report.ChunksFailed++
		return nil, false
	}

	candidates, err := extract.DecodeCandidates(raw)
	if err == nil {
		return candidates, true
	}

	repaired, repairErr := r.extractor.Repair(ctx, raw, err)
	if repairErr != nil {
		r.log.Error().Err(repairErr).Str("chunk", source).Msg("Repair call failed")
		report.ChunksFailed++
		return nil, false
	}
	candidates, err = extract.DecodeCandidates(repaired)
	if err != nil {
		r.log.Error().Err(err).Str("chunk", source).Msg("Output unusable after repair")
		report.ChunksFailed++
		return nil, false
	}
	return candidates, true
}

func (r *Runner) pace(ctx context.Context) error {
	if r.pacing == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("pace: %w", ctx.Err())
	case <-time.After(r.pacing):
		return nil
	}
}

// chunkSource labels a chunk for provenance: "<filename>#<index>".
func chunkSource(filename string, index int) string {
	return fmt.Sprintf("%s#%d", filename, index)
}

// textBlocks splits plain text into blocks of at most blockLines non-empty
// lines, bounding the size of each extraction call.
func textBlocks(text string, blockLines int) []string {
	if blockLines <= 0 {
		blockLines = tabular.DefaultBatchSize
	}

	var blocks []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		current = append(current, line)
		if len(current) == blockLines {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}
