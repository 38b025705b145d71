// Package postgres implements the ledger against Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"afin/internal/domain"
	"afin/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    type       TEXT NOT NULL,
    currency   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transactions (
    id            BIGSERIAL PRIMARY KEY,
    account_id    BIGINT NOT NULL REFERENCES accounts(id),
    date          DATE NOT NULL,
    amount        NUMERIC(19,4) NOT NULL,
    description   TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    import_source TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_match ON transactions (account_id, date, amount);
`

// Store is a Postgres-backed implementation of ledger.Store.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new Postgres ledger store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: ledger tables: %w", err)
	}
	return nil
}

// FindAccount implements the ledger.Store interface.
func (s *Store) FindAccount(ctx context.Context, name string) (*domain.Account, error) {
	query := squirrel.Select("id", "name", "type", "currency", "created_at").
		From("accounts").
		Where("LOWER(name) = LOWER(?)", name).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("FindAccount: build query: %w", err)
	}

	var acc domain.Account
	row := s.db.QueryRow(ctx, sql, args...)
	if err := row.Scan(&acc.ID, &acc.Name, &acc.Type, &acc.Currency, &acc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("FindAccount: scan: %w", err)
	}
	return &acc, nil
}

// CreateAccount implements the ledger.Store interface.
func (s *Store) CreateAccount(ctx context.Context, name, accountType, currency string) (*domain.Account, error) {
	query := squirrel.Insert("accounts").
		Columns("name", "type", "currency").
		Values(name, accountType, currency).
		Suffix("RETURNING id, created_at").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: build query: %w", err)
	}

	acc := domain.Account{Name: name, Type: accountType, Currency: currency}
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&acc.ID, &acc.CreatedAt); err != nil {
		return nil, fmt.Errorf("CreateAccount: insert %q: %w", name, err)
	}
	return &acc, nil
}

// WithTx implements the ledger.Store interface.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	pgtx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("WithTx: begin: %w", err)
	}

	if err := fn(&storeTx{tx: pgtx}); err != nil {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("WithTx: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("WithTx: commit: %w", err)
	}
	return nil
}

type storeTx struct {
	tx pgx.Tx
}

// QueryMatches implements the ledger.Tx interface.
func (t *storeTx) QueryMatches(ctx context.Context, accountID int64, from, to time.Time, amount decimal.Decimal) ([]domain.LedgerRow, error) {
	query := squirrel.Select("id", "account_id", "date", "amount", "notes", "created_at").
		From("transactions").
		Where(squirrel.Eq{"account_id": accountID}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to}).
		Where(squirrel.Eq{"amount": amount}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("QueryMatches: build query: %w", err)
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryMatches: query: %w", err)
	}
	defer rows.Close()

	var matches []domain.LedgerRow
	for rows.Next() {
		var r domain.LedgerRow
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Date, &r.Amount, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("QueryMatches: scan: %w", err)
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryMatches: rows: %w", err)
	}
	return matches, nil
}

// InsertTransactions implements the ledger.Tx interface.
func (t *storeTx) InsertTransactions(ctx context.Context, accountID int64, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	builder := squirrel.Insert("transactions").
		Columns("account_id", "date", "amount", "description", "category", "notes", "import_source").
		PlaceholderFormat(squirrel.Dollar)

	for _, tx := range txs {
		builder = builder.Values(accountID, tx.Date, tx.Amount, tx.Description, tx.Category, tx.Notes, tx.ImportSource)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("InsertTransactions: build query: %w", err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("InsertTransactions: insert %d rows: %w", len(txs), err)
	}
	return nil
}

// Annotate implements the ledger.Tx interface. The note is appended to any
// existing notes rather than replacing them.
func (t *storeTx) Annotate(ctx context.Context, rowID int64, note string) error {
	query := squirrel.Update("transactions").
		Set("notes", squirrel.Expr("TRIM(CONCAT(COALESCE(notes, ''), ' ', ?))", note)).
		Where(squirrel.Eq{"id": rowID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("Annotate: build query: %w", err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("Annotate: update row %d: %w", rowID, err)
	}
	return nil
}

// Ensure interfaces are implemented.
var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*storeTx)(nil)
)
