package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Persisted-entity limits. Values longer than these are truncated on
// creation, never rejected.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 500
	CurrencyCodeLength   = 3
	AmountScale          = 2
)

// DefaultCurrency is used when a row carries no usable currency code.
const DefaultCurrency = "EUR"

// TransactionParams carries the raw values for NewTransaction.
type TransactionParams struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Name        string
	Description string
	Date        time.Time
	IsImported  bool
}

// NewTransaction builds a ledger Transaction with every creation-time
// invariant applied: UTC date, two-decimal amount, upper-case three-letter
// currency, and truncated name/description.
func NewTransaction(p TransactionParams) Transaction {
	return Transaction{
		ID:          uuid.New(),
		AccountID:   p.AccountID,
		Amount:      p.Amount.Round(AmountScale),
		Currency:    NormalizeCurrency(p.Currency, DefaultCurrency),
		Name:        truncateRunes(p.Name, MaxNameLength),
		Description: truncateRunes(p.Description, MaxDescriptionLength),
		Date:        p.Date.UTC(),
		Recurrence:  Recurrence{Frequency: FrequencyNone},
		IsImported:  p.IsImported,
	}
}

// NormalizeCurrency trims and upper-cases code. Anything that is not exactly
// three ASCII letters afterwards yields fallback.
func NormalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CurrencyCodeLength {
		return fallback
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return fallback
		}
	}
	return code
}

// truncateRunes cuts s to at most max runes without splitting a character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// DateOnly truncates t to midnight UTC of its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b share a UTC calendar date.
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
