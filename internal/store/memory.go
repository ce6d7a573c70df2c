package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/google/uuid"
)

// Memory keeps everything in maps. It backs tests and CLI dry runs.
type Memory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
	txns     map[uuid.UUID]core.Transaction
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[uuid.UUID]Account),
		txns:     make(map[uuid.UUID]core.Transaction),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateAccount(_ context.Context, name, currency string) (Account, error) {
	acc := Account{
		ID:        uuid.New(),
		Name:      name,
		Currency:  core.NormalizeCurrency(currency, core.DefaultCurrency),
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.accounts[acc.ID] = acc
	m.mu.Unlock()
	return acc, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Account) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *Memory) AccountExists(_ context.Context, accountID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[accountID]
	return ok, nil
}

func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txns[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) Add(ctx context.Context, txn core.Transaction) error {
	return m.AddRange(ctx, []core.Transaction{txn})
}

// AddRange validates every row before writing any of them.
func (m *Memory) AddRange(_ context.Context, txns []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInsertLocked(txns); err != nil {
		return err
	}
	m.insertLocked(txns)
	return nil
}

func (m *Memory) ListByAccount(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]core.Transaction, error) {
	lo, hi := core.DateOnly(from), core.DateOnly(to).AddDate(0, 0, 1)
	return m.filter(func(t core.Transaction) bool {
		return t.AccountID == accountID && !t.IsRecurring && !t.Date.Before(lo) && t.Date.Before(hi)
	}), nil
}

func (m *Memory) ListActiveTemplates(_ context.Context, asOf time.Time) ([]core.Transaction, error) {
	return m.filter(func(t core.Transaction) bool {
		if !t.IsRecurring || t.Recurrence.Frequency == core.FrequencyNone {
			return false
		}
		cursor := core.Cursor(t)
		if !cursor.Before(asOf) {
			return false
		}
		return t.Recurrence.EndDate == nil || t.Recurrence.EndDate.After(cursor)
	}), nil
}

func (m *Memory) ListInstances(_ context.Context, templateID uuid.UUID) ([]core.Transaction, error) {
	return m.filter(func(t core.Transaction) bool {
		return t.ParentTemplateID != nil && *t.ParentTemplateID == templateID
	}), nil
}

// SaveBatch applies updates and inserts together or not at all.
func (m *Memory) SaveBatch(_ context.Context, updated, created []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range updated {
		if _, ok := m.txns[t.ID]; !ok {
			return fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
		}
		if _, ok := m.accounts[t.AccountID]; !ok {
			return fmt.Errorf("update transaction %s: %w", t.ID, core.ErrAccountNotFound)
		}
	}
	if err := m.checkInsertLocked(created); err != nil {
		return err
	}

	for _, t := range updated {
		m.txns[t.ID] = t
	}
	m.insertLocked(created)
	return nil
}

func (m *Memory) checkInsertLocked(txns []core.Transaction) error {
	seen := make(map[uuid.UUID]struct{}, len(txns))
	for _, t := range txns {
		if _, ok := m.accounts[t.AccountID]; !ok {
			return fmt.Errorf("insert transaction %s: %w", t.ID, core.ErrAccountNotFound)
		}
		_, stored := m.txns[t.ID]
		_, repeated := seen[t.ID]
		if stored || repeated {
			return fmt.Errorf("insert transaction %s: duplicate id", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func (m *Memory) insertLocked(txns []core.Transaction) {
	for _, t := range txns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = m.now()
		}
		t.Date = t.Date.UTC()
		m.txns[t.ID] = t
	}
}

// filter returns matching transactions ordered by date then id.
func (m *Memory) filter(keep func(core.Transaction) bool) []core.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Transaction
	for _, t := range m.txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}
