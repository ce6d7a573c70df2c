package core

// normalize.go turns parsed statement rows into candidate transactions.
// Every row yields a RowResult holding either a candidate or a failure; a
// bad row, including one that panics, never stops the rows after it.

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultName is used when a row has neither a name nor a description.
const DefaultName = "Imported"

// DefaultDateFormat applies when a Locale leaves DateFormat empty.
const DefaultDateFormat = "yyyy-MM-dd"

// Row failure messages.
const (
	msgDateRequired   = "Date is required"
	msgInvalidDate    = "Invalid date format: %s"
	msgAmountRequired = "Amount is required"
	msgInvalidAmount  = "Invalid amount format: %s"
)

// Locale describes how a statement writes dates and numbers.
//
// DateFormat accepts day/month/year patterns such as "dd/MM/yyyy" or
// "d MMM yyyy", or a Go reference layout such as "02.01.2006".
type Locale struct {
	DateFormat         string `json:"dateFormat" yaml:"date_format"`
	DecimalSeparator   string `json:"decimalSeparator" yaml:"decimal_separator"`
	ThousandsSeparator string `json:"thousandsSeparator" yaml:"thousands_separator"`
}

// RowResult is the outcome for one row: exactly one of Candidate and
// Failure is set.
type RowResult struct {
	RowNumber int
	Candidate *Transaction
	Failure   *RowFailure
}

// RowNormalizer converts rows under one confirmed mapping and locale.
type RowNormalizer struct {
	accountID uuid.UUID
	columns   map[CanonicalField]string
	layout    string
	decimal   string
	thousands string
}

// NewRowNormalizer prepares a normalizer. mappings is header → field; a
// field no header maps to counts as absent from every row.
func NewRowNormalizer(mappings ColumnMappings, locale Locale, accountID uuid.UUID) *RowNormalizer {
	columns := make(map[CanonicalField]string, len(mappings))
	for header, field := range mappings {
		if field == FieldUnknown || field == "" {
			continue
		}
		columns[field] = header
	}

	format := locale.DateFormat
	if strings.TrimSpace(format) == "" {
		format = DefaultDateFormat
	}
	dec := locale.DecimalSeparator
	if dec == "" {
		dec = "."
	}

	return &RowNormalizer{
		accountID: accountID,
		columns:   columns,
		layout:    DateLayout(format),
		decimal:   dec,
		thousands: locale.ThousandsSeparator,
	}
}

// Normalize processes rows after the first skip rows. Row numbers start at 1
// and include skipped rows. Only ctx cancellation returns an error.
func (n *RowNormalizer) Normalize(ctx context.Context, rows []map[string]string, skip int) ([]Transaction, []RowFailure, error) {
	if skip < 0 {
		skip = 0
	}

	var (
		candidates []Transaction
		failures   []RowFailure
	)
	for i := skip; i < len(rows); i++ {
		if (i-skip)%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		res := n.NormalizeRow(i+1, rows[i])
		if res.Failure != nil {
			failures = append(failures, *res.Failure)
			continue
		}
		candidates = append(candidates, *res.Candidate)
	}
	return candidates, failures, nil
}

// NormalizeRow converts a single row, recovering from panics.
func (n *RowNormalizer) NormalizeRow(rowNumber int, row map[string]string) (res RowResult) {
	res.RowNumber = rowNumber
	defer func() {
		if r := recover(); r != nil {
			res.Candidate = nil
			res.Failure = &RowFailure{
				RowNumber: rowNumber,
				Message:   fmt.Sprintf("Unexpected error: %v", r),
				RawRow:    maps.Clone(row),
			}
		}
	}()

	fail := func(msg string) RowResult {
		return RowResult{
			RowNumber: rowNumber,
			Failure:   &RowFailure{RowNumber: rowNumber, Message: msg, RawRow: maps.Clone(row)},
		}
	}

	rawDate := n.cell(row, FieldDate)
	if rawDate == "" {
		return fail(msgDateRequired)
	}
	date, err := time.Parse(n.layout, rawDate)
	if err != nil {
		return fail(fmt.Sprintf(msgInvalidDate, rawDate))
	}

	rawAmount := n.cell(row, FieldAmount)
	if rawAmount == "" {
		return fail(msgAmountRequired)
	}
	amount, err := n.parseAmount(rawAmount)
	if err != nil {
		return fail(fmt.Sprintf(msgInvalidAmount, rawAmount))
	}

	name := n.cell(row, FieldName)
	description := n.cell(row, FieldDescription)
	if name == "" && description == "" {
		name = DefaultName
	}

	currency := DefaultCurrency
	if _, ok := n.columns[FieldCurrency]; ok {
		currency = n.cell(row, FieldCurrency)
	}

	tx := NewTransaction(TransactionParams{
		AccountID:   n.accountID,
		Amount:      amount,
		Currency:    currency,
		Name:        name,
		Description: description,
		Date:        DateOnly(date),
		IsImported:  true,
	})
	res.Candidate = &tx
	return res
}

// cell returns the cleaned value mapped to field, or "" if unmapped.
func (n *RowNormalizer) cell(row map[string]string, field CanonicalField) string {
	header, ok := n.columns[field]
	if !ok {
		return ""
	}
	return cleanCell(row[header])
}

// cleanCell trims s and unwraps the ="..." form spreadsheet exports use to
// keep values from being reinterpreted.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

func (n *RowNormalizer) parseAmount(raw string) (decimal.Decimal, error) {
	return ParseAmount(raw, n.decimal, n.thousands)
}

// ParseAmount reads a signed number written with the given separators.
// Thousands separators are removed before the decimal separator becomes ".".
func ParseAmount(raw, decimalSep, thousandsSep string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if thousandsSep != "" && thousandsSep != decimalSep {
		s = strings.ReplaceAll(s, thousandsSep, "")
	}
	if decimalSep != "" && decimalSep != "." {
		s = strings.ReplaceAll(s, decimalSep, ".")
	}
	s = strings.TrimPrefix(s, "+")
	return decimal.NewFromString(s)
}

// dateTokens maps day/month/year pattern letters, by run length, to Go
// reference layout elements. Longest runs are listed first.
var dateTokens = map[byte][]struct {
	run    int
	layout string
}{
	'y': {{4, "2006"}, {2, "06"}},
	'M': {{4, "January"}, {3, "Jan"}, {2, "01"}, {1, "1"}},
	'd': {{2, "02"}, {1, "2"}},
	'H': {{2, "15"}},
	'm': {{2, "04"}},
	's': {{2, "05"}},
}

// DateLayout converts a pattern like "dd/MM/yyyy" to a Go layout. A format
// containing digits is assumed to be a Go layout already and returned as is.
func DateLayout(format string) string {
	if strings.ContainsAny(format, "0123456789") {
		return format
	}

	var b strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		run := 1
		for i+run < len(format) && format[i+run] == c {
			run++
		}

		tokens, ok := dateTokens[c]
		if !ok {
			b.WriteByte(c)
			i++
			continue
		}

		consumed := 0
		for _, t := range tokens {
			if run-consumed >= t.run {
				b.WriteString(t.layout)
				consumed += t.run
				break
			}
		}
		if consumed == 0 {
			b.WriteByte(c)
			consumed = 1
		}
		i += consumed
	}
	return b.String()
}
