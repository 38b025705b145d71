package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"afin/internal/domain"
)

func tx(desc string, amount int64) domain.Transaction {
	return domain.Transaction{
		Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromInt(amount),
		Description: desc,
	}
}

func TestStoreAppendReadClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Append(ctx, "user-1", []domain.Transaction{tx("a", -100), tx("b", -200)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "user-1", []domain.Transaction{tx("c", -300)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rows, err := store.Read(ctx, "user-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i].Description != want {
			t.Errorf("row %d description = %q, want %q", i, rows[i].Description, want)
		}
	}

	if err := store.Clear(ctx, "user-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	rows, err = store.Read(ctx, "user-1")
	if err != nil {
		t.Fatalf("Read after Clear failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows after Clear, want 0", len(rows))
	}
}

func TestStoreIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Append(ctx, "user-1", []domain.Transaction{tx("mine", -1)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rows, err := store.Read(ctx, "user-2")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("user-2 sees %d rows, want 0", len(rows))
	}

	if err := store.Clear(ctx, "user-2"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	rows, _ = store.Read(ctx, "user-1")
	if len(rows) != 1 {
		t.Errorf("clearing user-2 affected user-1: %d rows, want 1", len(rows))
	}
}

func TestStoreReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Append(ctx, "user-1", []domain.Transaction{tx("original", -1)}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rows, _ := store.Read(ctx, "user-1")
	rows[0].Description = "mutated"

	again, _ := store.Read(ctx, "user-1")
	if again[0].Description != "original" {
		t.Error("mutation of a Read result leaked into the store")
	}
}
