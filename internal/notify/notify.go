// Package notify publishes run summaries once a debounced batch finishes.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"afin/internal/domain"
)

// Notifier delivers a finished-run summary to the user.
type Notifier interface {
	Publish(ctx context.Context, summary domain.Summary) error
}

// LogNotifier writes summaries to the structured log. It is the default
// sink when no messaging channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Publish implements the Notifier interface.
func (n *LogNotifier) Publish(ctx context.Context, summary domain.Summary) error {
	n.log.Info().
		Str("user_id", summary.UserID).
		Int("files_processed", summary.FilesProcessed).
		Int("rows_extracted", summary.RowsExtracted).
		Int("rows_pending_total", summary.RowsPendingTotal).
		Int("chunks_total", summary.ChunksTotal).
		Int("chunks_failed", summary.ChunksFailed).
		Strs("account_hints", summary.AccountHints).
		Msg("Ingestion run finished")
	return nil
}

// Ensure LogNotifier implements Notifier interface.
var _ Notifier = (*LogNotifier)(nil)
