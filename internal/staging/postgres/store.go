// Package postgres provides the database-backed staging store. Pending
// rows survive service restarts, which is what lets the confirmation step
// happen minutes or days after ingestion.
package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"afin/internal/domain"
	"afin/internal/staging"
)

const schema = `
CREATE TABLE IF NOT EXISTS staging_transactions (
    id            BIGSERIAL PRIMARY KEY,
    user_id       TEXT NOT NULL,
    date          DATE NOT NULL,
    amount        NUMERIC(19,4) NOT NULL,
    description   TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    import_source TEXT NOT NULL DEFAULT '',
    confidence    DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_staging_user ON staging_transactions (user_id, id);
`

// Store is a Postgres-backed implementation of staging.Store.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new Postgres staging store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the staging table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: staging_transactions: %w", err)
	}
	return nil
}

// Append implements the staging.Store interface. All rows from one call are
// inserted in a single statement so a batch lands atomically.
func (s *Store) Append(ctx context.Context, userID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	builder := squirrel.Insert("staging_transactions").
		Columns("user_id", "date", "amount", "description", "category", "notes", "import_source", "confidence").
		PlaceholderFormat(squirrel.Dollar)

	for _, tx := range txs {
		builder = builder.Values(userID, tx.Date, tx.Amount, tx.Description, tx.Category, tx.Notes, tx.ImportSource, tx.Confidence)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("Append: build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("Append: insert %d rows: %w", len(txs), err)
	}
	return nil
}

// Read implements the staging.Store interface. Rows come back in append
// order (serial id).
func (s *Store) Read(ctx context.Context, userID string) ([]domain.Transaction, error) {
	query := squirrel.Select("date", "amount", "description", "category", "notes", "import_source", "confidence").
		From("staging_transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("id ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("Read: build query: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("Read: query: %w", err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.Date, &tx.Amount, &tx.Description, &tx.Category, &tx.Notes, &tx.ImportSource, &tx.Confidence); err != nil {
			return nil, fmt.Errorf("Read: scan: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Read: rows: %w", err)
	}
	return txs, nil
}

// Clear implements the staging.Store interface.
func (s *Store) Clear(ctx context.Context, userID string) error {
	query := squirrel.Delete("staging_transactions").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("Clear: build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("Clear: delete: %w", err)
	}
	return nil
}

// Ensure Store implements staging.Store interface.
var _ staging.Store = (*Store)(nil)
