// Package normalize converts loosely-typed extraction candidates into
// canonical transactions. Candidates that cannot yield a usable signed
// amount are dropped; a bad date never drops a row, because amount plus
// description carry the primary signal.
package normalize

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"afin/internal/domain"
)

const (
	// MaxDescriptionLen caps the description field.
	MaxDescriptionLen = 160

	// FallbackDescription is used when no alias yields a description.
	FallbackDescription = "Movimiento"
)

// Alias tables consulted in priority order. Source documents disagree on
// key names (and language), so resolution lives here instead of ad hoc
// conditionals scattered through the pipeline.
var (
	descriptionAliases = []string{"description", "payee_name", "payee", "descripcion", "merchant", "memo", "concepto", "detalle"}
	notesAliases       = []string{"notes", "note", "observaciones", "detail"}
	categoryAliases    = []string{"category", "categoria"}
	dateAliases        = []string{"date", "fecha"}
	amountAliases      = []string{"amount", "monto", "valor"}
	accountAliases     = []string{"account", "account_name", "cuenta"}
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2006-01-02T15:04:05Z07:00",
}

// Normalize converts candidates from one chunk into canonical transactions.
// importSource tags each row with its originating document/chunk label;
// ingestedAt is the date fallback. The order of surviving rows follows the
// candidate order. Cross-batch duplicate suppression is deferred to the
// reconciliation engine at commit time (source documents carry no stable
// transaction identity).
func Normalize(candidates []domain.Candidate, importSource string, ingestedAt time.Time) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(candidates))
	for _, cand := range candidates {
		amount, ok := coerceAmount(firstValue(cand, amountAliases))
		if !ok || amount.IsZero() {
			// Zero-amount rows are running-balance artifacts.
			continue
		}

		tx := domain.Transaction{
			Date:         coerceDate(firstValue(cand, dateAliases), ingestedAt),
			Amount:       amount,
			Description:  resolveDescription(cand),
			Category:     firstString(cand, categoryAliases),
			Notes:        firstString(cand, notesAliases),
			ImportSource: importSource,
			Confidence:   1.0,
		}
		txs = append(txs, tx)
	}
	return txs
}

// AccountHints collects distinct account names mentioned by candidates, in
// first-seen order. They surface in the run summary so the confirmation
// step can suggest a destination account.
func AccountHints(candidates []domain.Candidate) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, cand := range candidates {
		name := strings.TrimSpace(firstString(cand, accountAliases))
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			hints = append(hints, name)
		}
	}
	return hints
}

func resolveDescription(cand domain.Candidate) string {
	desc := strings.TrimSpace(firstString(cand, descriptionAliases))
	if desc == "" {
		return FallbackDescription
	}
	if len(desc) > MaxDescriptionLen {
		// Never cut a multi-byte character in half; the stores reject
		// invalid UTF-8.
		cut := MaxDescriptionLen
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut]
	}
	return desc
}

// coerceAmount accepts JSON numbers and numeric-like strings. Strings are
// cleaned of currency symbols and separator conventions before parsing:
// "1.232.000,50" (dot thousands) and "1,232,000.50" (comma thousands) both
// resolve to the same value.
func coerceAmount(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		return parseAmountString(val)
	default:
		return decimal.Decimal{}, false
	}
}

func parseAmountString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, false
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 1, dots >= 1 && commas >= 1 && strings.Index(s, ".") < strings.Index(s, ","):
		// Dot as thousands separator, comma as decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case commas > 1, commas == 1 && dots == 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1 && dots == 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// coerceDate accepts ISO-8601 and a few common layouts; anything else
// resolves to the ingestion date, never a null date.
func coerceDate(v interface{}, fallback time.Time) time.Time {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Keep the calendar day as written in the document, not the
			// day the instant falls on in UTC.
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	// ISO timestamps with extra precision: keep the date prefix.
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t
		}
	}
	return fallback
}

func firstValue(cand domain.Candidate, aliases []string) interface{} {
	for _, key := range aliases {
		if v, ok := cand[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(cand domain.Candidate, aliases []string) string {
	for _, key := range aliases {
		if v, ok := cand[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
