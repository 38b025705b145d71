package inmemory

import (
	"context"
	"sync"

	"afin/internal/domain"
	"afin/internal/staging"
)

// Store is an in-memory implementation of staging.Store.
// It is safe for concurrent use. Data is lost on restart - the
// database-backed store covers deployments that need persistence.
type Store struct {
	mu      sync.RWMutex
	pending map[string][]domain.Transaction
}

// NewStore creates a new in-memory staging store.
func NewStore() *Store {
	return &Store{
		pending: make(map[string][]domain.Transaction),
	}
}

// Append implements the staging.Store interface.
func (s *Store) Append(ctx context.Context, userID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[userID] = append(s.pending[userID], txs...)
	return nil
}

// Read implements the staging.Store interface.
func (s *Store) Read(ctx context.Context, userID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to avoid external modifications
	rows := s.pending[userID]
	out := make([]domain.Transaction, len(rows))
	copy(out, rows)
	return out, nil
}

// Clear implements the staging.Store interface.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, userID)
	return nil
}

// Ensure Store implements staging.Store interface.
var _ staging.Store = (*Store)(nil)
