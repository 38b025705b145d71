package normalize

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"afin/internal/domain"
)

var ingested = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func TestNormalizeDropsZeroAndMissingAmounts(t *testing.T) {
	candidates := []domain.Candidate{
		{"date": "2024-01-01", "amount": float64(-50000), "payee_name": "Uber"},
		{"date": "2024-01-02", "amount": float64(0), "payee_name": "Saldo"},
		{"date": "2024-01-03", "payee_name": "Sin monto"},
		{"date": "2024-01-04", "amount": "garbage", "payee_name": "Ilegible"},
	}

	txs := Normalize(candidates, "test.csv#0", ingested)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Description != "Uber" {
		t.Errorf("description = %q, want Uber", txs[0].Description)
	}
	if !txs[0].Amount.Equal(decimal.NewFromInt(-50000)) {
		t.Errorf("amount = %s, want -50000", txs[0].Amount)
	}
}

func TestNormalizeDateFallback(t *testing.T) {
	candidates := []domain.Candidate{
		{"amount": float64(-100), "payee_name": "A"},
		{"date": "not a date", "amount": float64(-200), "payee_name": "B"},
		{"date": "2024-01-10", "amount": float64(-300), "payee_name": "C"},
	}

	txs := Normalize(candidates, "src", ingested)
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}
	if !txs[0].Date.Equal(ingested) {
		t.Errorf("missing date should fall back to ingestion date, got %s", txs[0].Date)
	}
	if !txs[1].Date.Equal(ingested) {
		t.Errorf("unparseable date should fall back to ingestion date, got %s", txs[1].Date)
	}
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !txs[2].Date.Equal(want) {
		t.Errorf("date = %s, want %s", txs[2].Date, want)
	}
}

func TestNormalizeKeepsDocumentCalendarDay(t *testing.T) {
	// A late-evening timestamp with a western offset is still Jan 10 as
	// written, even though the instant falls on Jan 11 in UTC.
	txs := Normalize([]domain.Candidate{
		{"date": "2024-01-10T23:30:00-05:00", "amount": float64(-100), "payee_name": "A"},
	}, "src", ingested)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !txs[0].Date.Equal(want) {
		t.Errorf("date = %s, want %s", txs[0].Date, want)
	}
}

func TestNormalizeDescriptionAliasesAndFallback(t *testing.T) {
	tests := []struct {
		name string
		cand domain.Candidate
		want string
	}{
		{
			name: "description wins over payee_name",
			cand: domain.Candidate{"amount": float64(-1), "description": "Primary", "payee_name": "Secondary"},
			want: "Primary",
		},
		{
			name: "payee_name",
			cand: domain.Candidate{"amount": float64(-1), "payee_name": "Uber"},
			want: "Uber",
		},
		{
			name: "spanish alias",
			cand: domain.Candidate{"amount": float64(-1), "concepto": "Pago servicios"},
			want: "Pago servicios",
		},
		{
			name: "empty falls back",
			cand: domain.Candidate{"amount": float64(-1), "payee_name": "  "},
			want: FallbackDescription,
		},
		{
			name: "absent falls back",
			cand: domain.Candidate{"amount": float64(-1)},
			want: FallbackDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := Normalize([]domain.Candidate{tt.cand}, "src", ingested)
			if len(txs) != 1 {
				t.Fatalf("got %d transactions, want 1", len(txs))
			}
			if txs[0].Description != tt.want {
				t.Errorf("description = %q, want %q", txs[0].Description, tt.want)
			}
		})
	}
}

func TestNormalizeTruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("x", MaxDescriptionLen+40)
	txs := Normalize([]domain.Candidate{
		{"amount": float64(-1), "description": long},
	}, "src", ingested)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if len(txs[0].Description) != MaxDescriptionLen {
		t.Errorf("description length = %d, want %d", len(txs[0].Description), MaxDescriptionLen)
	}
}

func TestNormalizeTruncationKeepsValidUTF8(t *testing.T) {
	// One leading ASCII byte makes the two-byte runes straddle the cap.
	long := "a" + strings.Repeat("ñ", MaxDescriptionLen)
	txs := Normalize([]domain.Candidate{
		{"amount": float64(-1), "description": long},
	}, "src", ingested)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	desc := txs[0].Description
	if !utf8.ValidString(desc) {
		t.Errorf("truncated description is not valid UTF-8: %q", desc)
	}
	if len(desc) > MaxDescriptionLen {
		t.Errorf("description length = %d bytes, want <= %d", len(desc), MaxDescriptionLen)
	}
}

func TestParseAmountString(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"-50000", "-50000", true},
		{"1232000.50", "1232000.5", true},
		{"1.232.000,50", "1232000.5", true},
		{"1,232,000.50", "1232000.5", true},
		{"1234,56", "1234.56", true},
		// A lone dot with no comma is a decimal point, not a thousands
		// separator; "120.000" is one hundred twenty.
		{"$ -120.000", "-120", true},
		{"", "", false},
		{"abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAmountString(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseAmountString(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !ok {
				return
			}
			want, err := decimal.NewFromString(tt.want)
			if err != nil {
				t.Fatalf("bad want value %q: %v", tt.want, err)
			}
			if !got.Equal(want) {
				t.Errorf("parseAmountString(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestNormalizeAttachesImportSourceAndConfidence(t *testing.T) {
	txs := Normalize([]domain.Candidate{
		{"amount": float64(-10), "payee_name": "A"},
	}, "statement.pdf#2", ingested)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].ImportSource != "statement.pdf#2" {
		t.Errorf("import source = %q, want statement.pdf#2", txs[0].ImportSource)
	}
	if txs[0].Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", txs[0].Confidence)
	}
}

func TestAccountHints(t *testing.T) {
	candidates := []domain.Candidate{
		{"amount": float64(-1), "account": "Bancolombia"},
		{"amount": float64(-2), "cuenta": "Nequi"},
		{"amount": float64(-3), "account": "bancolombia"},
		{"amount": float64(-4)},
	}

	hints := AccountHints(candidates)
	if len(hints) != 2 {
		t.Fatalf("got %d hints, want 2: %v", len(hints), hints)
	}
	if hints[0] != "Bancolombia" || hints[1] != "Nequi" {
		t.Errorf("hints = %v, want [Bancolombia Nequi]", hints)
	}
}

func TestNormalizeIsIdempotentOnCleanInput(t *testing.T) {
	candidates := []domain.Candidate{
		{"date": "2024-02-01", "amount": float64(-75000), "payee_name": "Mercado", "notes": "semanal"},
	}

	first := Normalize(candidates, "src", ingested)
	roundTripped := []domain.Candidate{
		{
			"date":        first[0].Date.Format("2006-01-02"),
			"amount":      first[0].Amount.String(),
			"description": first[0].Description,
			"notes":       first[0].Notes,
		},
	}
	second := Normalize(roundTripped, "src", ingested)

	if len(second) != 1 {
		t.Fatalf("got %d transactions, want 1", len(second))
	}
	if !second[0].Date.Equal(first[0].Date) || !second[0].Amount.Equal(first[0].Amount) ||
		second[0].Description != first[0].Description || second[0].Notes != first[0].Notes {
		t.Errorf("re-normalizing normalized output changed the row:\nfirst  %+v\nsecond %+v", first[0], second[0])
	}
}
