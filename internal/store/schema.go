package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are idempotent and applied in order by Migrate.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id         uuid PRIMARY KEY,
		name       text NOT NULL,
		currency   char(3) NOT NULL DEFAULT 'EUR',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                    uuid PRIMARY KEY,
		account_id            uuid NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		amount                numeric(18, 2) NOT NULL,
		currency              char(3) NOT NULL,
		name                  varchar(200) NOT NULL DEFAULT '',
		description           varchar(500) NOT NULL DEFAULT '',
		occurred_at           timestamptz NOT NULL,
		is_recurring          boolean NOT NULL DEFAULT false,
		frequency             text NOT NULL DEFAULT 'None'
		                      CHECK (frequency IN ('None', 'Daily', 'Weekly', 'Monthly', 'Yearly')),
		end_date              timestamptz,
		last_materialized_at  timestamptz,
		is_imported           boolean NOT NULL DEFAULT false,
		is_recurring_instance boolean NOT NULL DEFAULT false,
		parent_template_id    uuid REFERENCES transactions (id) ON DELETE SET NULL,
		created_at            timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_account_date_idx
		ON transactions (account_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS transactions_parent_idx
		ON transactions (parent_template_id) WHERE parent_template_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS transactions_active_templates_idx
		ON transactions (end_date) WHERE is_recurring AND frequency <> 'None'`,
}

// Migrate creates the schema if it does not exist. It runs in one
// transaction so a failure leaves the database unchanged.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}
