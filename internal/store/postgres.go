package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes handled explicitly.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

const transactionColumns = `id, account_id, amount, currency, name, description, occurred_at,
	is_recurring, frequency, end_date, last_materialized_at,
	is_imported, is_recurring_instance, parent_template_id, created_at`

// copyColumns is transactionColumns for CopyFrom, in the same order.
var copyColumns = []string{
	"id", "account_id", "amount", "currency", "name", "description", "occurred_at",
	"is_recurring", "frequency", "end_date", "last_materialized_at",
	"is_imported", "is_recurring_instance", "parent_template_id", "created_at",
}

// Postgres stores transactions in PostgreSQL through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres returns a store over pool. Call Migrate first on a new
// database.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Postgres) CreateAccount(ctx context.Context, name, currency string) (Account, error) {
	acc := Account{
		ID:        uuid.New(),
		Name:      name,
		Currency:  core.NormalizeCurrency(currency, core.DefaultCurrency),
		CreatedAt: p.now(),
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, currency, created_at) VALUES ($1, $2, $3, $4)`,
		toPgUUID(acc.ID), acc.Name, acc.Currency, toPgTimestamptz(acc.CreatedAt),
	)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (p *Postgres) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, currency, created_at FROM accounts ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
		var (
			a  Account
			id pgtype.UUID
		)
		if err := row.Scan(&id, &a.Name, &a.Currency, &a.CreatedAt); err != nil {
			return Account{}, err
		}
		a.ID = uuid.UUID(id.Bytes)
		a.CreatedAt = a.CreatedAt.UTC()
		return a, nil
	})
}

func (p *Postgres) AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, toPgUUID(accountID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return exists, nil
}

func (p *Postgres) GetByID(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, toPgUUID(id))
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (p *Postgres) Add(ctx context.Context, txn core.Transaction) error {
	args, err := p.transactionArgs(txn)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		args...,
	)
	return translateError("insert transaction", err)
}

// AddRange copies txns inside one transaction; a failure rolls back all rows.
func (p *Postgres) AddRange(ctx context.Context, txns []core.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return p.copyTransactions(ctx, tx, txns)
	})
}

func (p *Postgres) copyTransactions(ctx context.Context, tx pgx.Tx, txns []core.Transaction) error {
	rows := make([][]any, len(txns))
	for i, t := range txns {
		args, err := p.transactionArgs(t)
		if err != nil {
			return err
		}
		rows[i] = args
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return translateError("copy transactions", err)
	}
	if int(n) != len(txns) {
		return fmt.Errorf("copy transactions: wrote %d of %d rows", n, len(txns))
	}
	return nil
}

func (p *Postgres) ListByAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]core.Transaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = $1 AND NOT is_recurring
		   AND occurred_at >= $2 AND occurred_at < $3
		 ORDER BY occurred_at, created_at`,
		toPgUUID(accountID),
		toPgTimestamptz(core.DateOnly(from)),
		toPgTimestamptz(core.DateOnly(to).AddDate(0, 0, 1)),
	)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (p *Postgres) ListActiveTemplates(ctx context.Context, asOf time.Time) ([]core.Transaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE is_recurring AND frequency <> 'None'
		   AND COALESCE(last_materialized_at, occurred_at) < $1
		   AND (end_date IS NULL OR end_date > COALESCE(last_materialized_at, occurred_at))
		 ORDER BY created_at, id`,
		toPgTimestamptz(asOf),
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return collectTransactions(rows)
}

func (p *Postgres) ListInstances(ctx context.Context, templateID uuid.UUID) ([]core.Transaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE parent_template_id = $1
		 ORDER BY occurred_at`,
		toPgUUID(templateID),
	)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return collectTransactions(rows)
}

// SaveBatch updates and inserts in one transaction. Updating a missing row
// fails the whole batch with core.ErrNotFound.
func (p *Postgres) SaveBatch(ctx context.Context, updated, created []core.Transaction) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, t := range updated {
			args, err := p.transactionArgs(t)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx,
				`UPDATE transactions SET
					account_id = $2, amount = $3, currency = $4, name = $5, description = $6,
					occurred_at = $7, is_recurring = $8, frequency = $9, end_date = $10,
					last_materialized_at = $11, is_imported = $12, is_recurring_instance = $13,
					parent_template_id = $14
				 WHERE id = $1`,
				args[:14]...,
			)
			if err != nil {
				return translateError("update transaction", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
			}
		}
		if len(created) == 0 {
			return nil
		}
		return p.copyTransactions(ctx, tx, created)
	})
}

// transactionArgs returns column values in transactionColumns order.
func (p *Postgres) transactionArgs(t core.Transaction) ([]any, error) {
	amount, err := toPgNumeric(t.Amount)
	if err != nil {
		return nil, err
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now()
	}
	freq := t.Recurrence.Frequency
	if freq == "" {
		freq = core.FrequencyNone
	}
	return []any{
		toPgUUID(t.ID),
		toPgUUID(t.AccountID),
		amount,
		t.Currency,
		t.Name,
		t.Description,
		toPgTimestamptz(t.Date),
		t.IsRecurring,
		string(freq),
		toPgNullTimestamptz(t.Recurrence.EndDate),
		toPgNullTimestamptz(t.Recurrence.LastMaterializedAt),
		t.IsImported,
		t.IsRecurringInstance,
		toPgNullUUID(t.ParentTemplateID),
		toPgTimestamptz(createdAt),
	}, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t                 core.Transaction
		id, account       pgtype.UUID
		parent            pgtype.UUID
		amount            pgtype.Numeric
		freq              string
		occurred, created pgtype.Timestamptz
		endDate, lastMat  pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &account, &amount, &t.Currency, &t.Name, &t.Description, &occurred,
		&t.IsRecurring, &freq, &endDate, &lastMat,
		&t.IsImported, &t.IsRecurringInstance, &parent, &created,
	)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount, err = fromPgNumeric(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", uuid.UUID(id.Bytes), err)
	}
	t.ID = uuid.UUID(id.Bytes)
	t.AccountID = uuid.UUID(account.Bytes)
	t.Date = occurred.Time.UTC()
	t.CreatedAt = created.Time.UTC()
	t.Recurrence = core.Recurrence{
		Frequency:          core.Frequency(freq),
		EndDate:            fromPgNullTimestamptz(endDate),
		LastMaterializedAt: fromPgNullTimestamptz(lastMat),
	}
	t.ParentTemplateID = fromPgNullUUID(parent)
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]core.Transaction, error) {
	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return txns, nil
}

// translateError maps constraint violations to core errors.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			if pgErr.ConstraintName == "transactions_account_id_fkey" {
				return fmt.Errorf("%s: %w", op, core.ErrAccountNotFound)
			}
			return fmt.Errorf("%s: %w", op, core.ErrNotFound)
		case pgUniqueViolation:
			return fmt.Errorf("%s: duplicate id (%s): %w", op, pgErr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
