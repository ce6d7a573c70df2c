// Package core provides the business logic for statement imports and
// recurring transaction materialization.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CanonicalField is the semantic meaning assigned to a statement column.
type CanonicalField string

const (
	FieldDate        CanonicalField = "Date"
	FieldAmount      CanonicalField = "Amount"
	FieldDescription CanonicalField = "Description"
	FieldName        CanonicalField = "Name"
	FieldBalance     CanonicalField = "Balance"
	FieldCurrency    CanonicalField = "Currency"
	FieldUnknown     CanonicalField = "Unknown"
)

// canonicalFields lists every field in declaration order.
var canonicalFields = []CanonicalField{
	FieldDate, FieldAmount, FieldDescription, FieldName, FieldBalance, FieldCurrency, FieldUnknown,
}

// ParseCanonicalField resolves a field name case-insensitively.
func ParseCanonicalField(s string) (CanonicalField, error) {
	s = strings.TrimSpace(s)
	for _, f := range canonicalFields {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return FieldUnknown, fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, s)
}

// ColumnSuggestion is the detector's guess for one header.
type ColumnSuggestion struct {
	SuggestedField CanonicalField `json:"suggestedField"`
	Confidence     int            `json:"confidence"` // 0-100
}

// HeaderMapping maps raw header text to the detector's suggestion.
type HeaderMapping map[string]ColumnSuggestion

// ColumnMappings is the user-confirmed header -> field assignment.
type ColumnMappings map[string]CanonicalField

// ParsedTable is a decoded statement: ordered headers plus one map per row.
// Treat it as read-only once returned by ParseTable.
type ParsedTable struct {
	Headers []string
	Rows    []map[string]string
}

// Frequency is the repeat interval of a recurring template.
type Frequency string

const (
	FrequencyNone    Frequency = "None"
	FrequencyDaily   Frequency = "Daily"
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
	FrequencyYearly  Frequency = "Yearly"
)

// ParseFrequency resolves a frequency name case-insensitively.
// An empty string is FrequencyNone.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FrequencyNone, nil
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	case "yearly":
		return FrequencyYearly, nil
	default:
		return FrequencyNone, fmt.Errorf("unknown frequency %q", s)
	}
}

// Recurrence describes how a template repeats and how far it has been
// materialized.
type Recurrence struct {
	Frequency          Frequency  `json:"frequency"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	LastMaterializedAt *time.Time `json:"lastMaterializedAt,omitempty"`
}

// Transaction is the canonical persisted ledger record. Templates
// (IsRecurring) share the type but are never ledger entries themselves.
type Transaction struct {
	ID                  uuid.UUID       `json:"id"`
	AccountID           uuid.UUID       `json:"accountId"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Date                time.Time       `json:"date"` // UTC
	IsRecurring         bool            `json:"isRecurring"`
	Recurrence          Recurrence      `json:"recurrence"`
	IsImported          bool            `json:"isImported"`
	IsRecurringInstance bool            `json:"isRecurringInstance"`
	ParentTemplateID    *uuid.UUID      `json:"parentTemplateId,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// RowFailure records one statement row that could not be materialized.
type RowFailure struct {
	RowNumber int               `json:"rowNumber"`
	Message   string            `json:"message"`
	RawRow    map[string]string `json:"rawRow"`
}

// ImportOutcome aggregates the result of one ConfirmImport call.
type ImportOutcome struct {
	SuccessCount   int           `json:"successCount"`
	FailureCount   int           `json:"failureCount"`
	DuplicateCount int           `json:"duplicateCount"`
	Failures       []RowFailure  `json:"failures"`
	Created        []Transaction `json:"created"`
}

// TransactionStore is the persistence collaborator consumed by the core.
// Implementations live in internal/store.
type TransactionStore interface {
	// AccountExists reports whether the account is known.
	AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error)

	// GetByID returns ErrNotFound when no transaction has the id.
	GetByID(ctx context.Context, id uuid.UUID) (Transaction, error)

	// Add persists a single transaction.
	Add(ctx context.Context, txn Transaction) error

	// AddRange persists all transactions in one storage transaction:
	// either every row commits or none does.
	AddRange(ctx context.Context, txns []Transaction) error

	// ListByAccount returns non-template transactions of an account whose
	// date falls within [from, to] (inclusive, UTC days).
	ListByAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]Transaction, error)

	// ListActiveTemplates returns recurring templates with a frequency other
	// than None whose Cursor is before asOf and whose end date is unset or
	// after the Cursor. A template stays listed after its end date passes
	// until every occurrence up to that date is materialized.
	ListActiveTemplates(ctx context.Context, asOf time.Time) ([]Transaction, error)

	// ListInstances returns the instances generated from one template.
	ListInstances(ctx context.Context, templateID uuid.UUID) ([]Transaction, error)

	// SaveBatch updates the given transactions and inserts the created ones
	// in one storage transaction.
	SaveBatch(ctx context.Context, updated []Transaction, created []Transaction) error
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
