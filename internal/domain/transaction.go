package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is one loosely-typed transaction object as returned by the
// extraction service, before any validation. Keys vary by source document
// (payee vs payee_name vs descripcion, etc.); normalization resolves them.
type Candidate map[string]interface{}

// Transaction is one normalized transaction. Amount is signed: negative for
// money out, positive for money in, and never zero (zero-amount rows are
// running-balance artifacts, not transactions). Date always resolves to a
// concrete calendar date; when the source date is unreadable the ingestion
// date is used instead.
type Transaction struct {
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Category     string          `json:"category,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	ImportSource string          `json:"import_source"`
	Confidence   float64         `json:"confidence"`
	ReviewNeeded bool            `json:"review_needed"`
}

// Account is a ledger account. Names are matched case-insensitively on
// lookup and never deleted implicitly.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerRow is an existing ledger transaction as returned by a
// reconciliation match query.
type LedgerRow struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
}

// Upload is one inbound document submission: raw bytes plus the declared
// media type and original filename.
type Upload struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Summary is the outbound event emitted after one consolidated extraction
// run. Delivery and phrasing belong to the notification collaborator.
type Summary struct {
	UserID           string   `json:"user_id"`
	FilesProcessed   int      `json:"files_processed"`
	RowsExtracted    int      `json:"rows_extracted"`
	RowsPendingTotal int      `json:"rows_pending_total"`
	ChunksTotal      int      `json:"chunks_total"`
	ChunksFailed     int      `json:"chunks_failed"`
	AccountHints     []string `json:"detected_account_hints,omitempty"`
}
