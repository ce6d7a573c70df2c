// Package store persists accounts and transactions for the core package.
//
// Two implementations satisfy [Store]: [Postgres] for the server and
// [Memory] for tests and dry runs. Both treat AddRange and SaveBatch as a
// single unit of work.
package store

import (
	"context"
	"time"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/google/uuid"
)

// Account owns transactions. Account management is outside the core, so
// the store offers just enough to create and list them.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is a core.TransactionStore that can also manage accounts.
type Store interface {
	core.TransactionStore

	CreateAccount(ctx context.Context, name, currency string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
