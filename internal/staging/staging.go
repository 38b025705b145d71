// Package staging holds extracted transactions awaiting user confirmation.
// Rows land here after a pipeline run and stay until the user commits or
// discards them, so a staging store must survive whatever lifetime the
// deployment needs (in-memory for one-shot runs, Postgres for the service).
package staging

import (
	"context"

	"afin/internal/domain"
)

// Store defines the interface for staging pending transactions per user.
type Store interface {
	// Append adds rows to the user's pending set, preserving order across
	// calls. Appending an empty slice is a no-op.
	Append(ctx context.Context, userID string, txs []domain.Transaction) error

	// Read returns the user's pending rows in append order. A user with
	// nothing pending gets an empty slice, not an error.
	Read(ctx context.Context, userID string) ([]domain.Transaction, error)

	// Clear removes all pending rows for the user.
	Clear(ctx context.Context, userID string) error
}
