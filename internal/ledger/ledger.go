// Package ledger is the system of record for committed transactions. The
// reconciliation engine drives it exclusively through transactions so that
// the match-or-insert decision for each candidate row is atomic.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"afin/internal/domain"
)

// Store defines the ledger boundary.
type Store interface {
	// FindAccount looks up an account by name, case-insensitively.
	// Returns (nil, nil) when no account matches.
	FindAccount(ctx context.Context, name string) (*domain.Account, error)

	// CreateAccount creates an account and returns it with its ID set.
	CreateAccount(ctx context.Context, name, accountType, currency string) (*domain.Account, error)

	// WithTx runs fn inside a database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of ledger operations available inside a transaction.
type Tx interface {
	// QueryMatches returns ledger rows for the account whose date falls in
	// [from, to] and whose amount equals the given value exactly, ordered
	// oldest-first by insertion time.
	QueryMatches(ctx context.Context, accountID int64, from, to time.Time, amount decimal.Decimal) ([]domain.LedgerRow, error)

	// InsertTransactions inserts new ledger rows for the account.
	InsertTransactions(ctx context.Context, accountID int64, txs []domain.Transaction) error

	// Annotate appends a note to an existing ledger row.
	Annotate(ctx context.Context, rowID int64, note string) error
}
