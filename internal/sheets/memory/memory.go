// Package memory holds an in-memory Mirror used by worker tests.
package memory

import (
	"context"
	"sync"

	"kharcha/internal/core"
	ports "kharcha/internal/sheets"
)

type row struct {
	Expense core.Expense
	Owner   string
}

type Store struct {
	mu   sync.Mutex
	rows map[int64]row
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]row)}
}

func (s *Store) UpsertExpense(_ context.Context, e core.Expense, ownerName string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[e.ID] = row{Expense: e, Owner: ownerName}
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

// Get returns the mirrored expense and owner name, if present.
func (s *Store) Get(id int64) (core.Expense, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r.Expense, r.Owner, ok
}

// Len reports the number of mirrored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
