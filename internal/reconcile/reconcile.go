// Package reconcile commits pending transactions to the ledger, matching
// each candidate against rows already present before inserting. A candidate
// matches when an existing row has the exact same amount and a date within
// one day in either direction; the match is annotated with the candidate's
// provenance instead of inserting a duplicate.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"afin/internal/domain"
	"afin/internal/ledger"
)

// matchWindowDays is the tolerance between a document's transaction date and
// the ledger's posting date. Card settlements routinely post a day late.
const matchWindowDays = 1

// Report summarizes one commit.
type Report struct {
	AccountID int64 `json:"account_id"`
	Matched   int   `json:"matched"`
	Inserted  int   `json:"inserted"`
}

// Engine drives commits against a ledger store.
type Engine struct {
	store ledger.Store
	log   zerolog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(store ledger.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Commit reconciles txs into the named account, creating the account if it
// does not exist. Each candidate is decided inside its own ledger
// transaction, so a failure partway keeps the progress already committed;
// the error reports where the commit stopped.
func (e *Engine) Commit(ctx context.Context, accountName, accountType, currency string, txs []domain.Transaction) (Report, error) {
	acc, err := e.store.FindAccount(ctx, accountName)
	if err != nil {
		return Report{}, fmt.Errorf("Commit: find account %q: %w", accountName, err)
	}
	if acc == nil {
		acc, err = e.store.CreateAccount(ctx, accountName, accountType, currency)
		if err != nil {
			return Report{}, fmt.Errorf("Commit: create account %q: %w", accountName, err)
		}
		e.log.Info().Str("account", accountName).Int64("account_id", acc.ID).Msg("Created account")
	}

	report := Report{AccountID: acc.ID}
	for i, tx := range txs {
		if err := e.commitOne(ctx, acc.ID, tx, &report); err != nil {
			return report, fmt.Errorf("Commit: row %d/%d (%s): %w", i+1, len(txs), tx.Description, err)
		}
	}

	e.log.Info().
		Str("account", accountName).
		Int("matched", report.Matched).
		Int("inserted", report.Inserted).
		Msg("Commit finished")
	return report, nil
}

func (e *Engine) commitOne(ctx context.Context, accountID int64, tx domain.Transaction, report *Report) error {
	return e.store.WithTx(ctx, func(ltx ledger.Tx) error {
		from := tx.Date.AddDate(0, 0, -matchWindowDays)
		to := tx.Date.AddDate(0, 0, matchWindowDays)

		matches, err := ltx.QueryMatches(ctx, accountID, from, to, tx.Amount)
		if err != nil {
			return err
		}

		if len(matches) > 0 {
			// Oldest row wins; QueryMatches orders by insertion time.
			note := fmt.Sprintf("[Ref: %s]", tx.ImportSource)
			if err := ltx.Annotate(ctx, matches[0].ID, note); err != nil {
				return err
			}
			report.Matched++
			return nil
		}

		if err := ltx.InsertTransactions(ctx, accountID, []domain.Transaction{tx}); err != nil {
			return err
		}
		report.Inserted++
		return nil
	})
}
