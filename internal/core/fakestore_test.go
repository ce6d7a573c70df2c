package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeStore is a TransactionStore for tests in this package.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]bool
	txns     map[uuid.UUID]Transaction

	addRangeCalls int
	saveBatchErr  map[uuid.UUID]error // keyed by template id
	addRangeErr   error
}

func newFakeStore(accounts ...uuid.UUID) *fakeStore {
	s := &fakeStore{
		accounts:     make(map[uuid.UUID]bool),
		txns:         make(map[uuid.UUID]Transaction),
		saveBatchErr: make(map[uuid.UUID]error),
	}
	for _, a := range accounts {
		s.accounts[a] = true
	}
	return s
}

func (s *fakeStore) AccountExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id], nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txns[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (s *fakeStore) Add(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[tx.ID] = tx
	return nil
}

func (s *fakeStore) AddRange(_ context.Context, txns []Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addRangeCalls++
	if s.addRangeErr != nil {
		return s.addRangeErr
	}
	for _, tx := range txns {
		s.txns[tx.ID] = tx
	}
	return nil
}

func (s *fakeStore) ListByAccount(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.txns {
		d := DateOnly(tx.Date)
		if tx.AccountID == accountID && !tx.IsRecurring && !d.Before(DateOnly(from)) && !d.After(DateOnly(to)) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActiveTemplates(_ context.Context, asOf time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.txns {
		if !tx.IsRecurring || tx.Recurrence.Frequency == FrequencyNone {
			continue
		}
		cursor := Cursor(tx)
		if !cursor.Before(asOf) {
			continue
		}
		if end := tx.Recurrence.EndDate; end != nil && !end.After(cursor) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *fakeStore) ListInstances(_ context.Context, templateID uuid.UUID) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.txns {
		if tx.ParentTemplateID != nil && *tx.ParentTemplateID == templateID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveBatch(_ context.Context, updated, created []Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range updated {
		if err := s.saveBatchErr[tx.ID]; err != nil {
			return err
		}
		if _, ok := s.txns[tx.ID]; !ok {
			return errors.New("update of unknown transaction")
		}
	}
	for _, tx := range updated {
		s.txns[tx.ID] = tx
	}
	for _, tx := range created {
		s.txns[tx.ID] = tx
	}
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// fixedClock always reports the same instant.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
