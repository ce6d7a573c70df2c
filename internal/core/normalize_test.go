package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testMappings = ColumnMappings{
	"Date":        FieldDate,
	"Amount":      FieldAmount,
	"Description": FieldDescription,
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		dec, thou string
		want      string
		wantErr   bool
	}{
		{name: "european", raw: "1.234,56", dec: ",", thou: ".", want: "1234.56"},
		{name: "us", raw: "1,234.56", dec: ".", thou: ",", want: "1234.56"},
		{name: "negative", raw: "-42,10", dec: ",", thou: ".", want: "-42.1"},
		{name: "explicit plus", raw: "+7", dec: ".", thou: "", want: "7"},
		{name: "space thousands", raw: "12 000,5", dec: ",", thou: " ", want: "12000.5"},
		{name: "garbage", raw: "abc", dec: ".", thou: ",", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.dec, tt.thou)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAmount(%q) expected error, got %s", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.raw, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDateLayout(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"yyyy-MM-dd", "2006-01-02"},
		{"dd/MM/yyyy", "02/01/2006"},
		{"d.M.yy", "2.1.06"},
		{"d MMM yyyy", "2 Jan 2006"},
		{"dd MMMM yyyy", "02 January 2006"},
		{"MM/dd/yyyy HH:mm", "01/02/2006 15:04"},
		{"02.01.2006", "02.01.2006"},
	}
	for _, tt := range tests {
		if got := DateLayout(tt.format); got != tt.want {
			t.Errorf("DateLayout(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestNormalizeRow(t *testing.T) {
	account := uuid.New()
	n := NewRowNormalizer(ColumnMappings{
		"Data":        FieldDate,
		"Importo":     FieldAmount,
		"Descrizione": FieldDescription,
		"Valuta":      FieldCurrency,
		"Saldo":       FieldBalance,
	}, Locale{DateFormat: "dd/MM/yyyy", DecimalSeparator: ",", ThousandsSeparator: "."}, account)

	tests := []struct {
		name    string
		row     map[string]string
		wantMsg string
		check   func(t *testing.T, tx Transaction)
	}{
		{
			name: "valid row",
			row:  map[string]string{"Data": "15/01/2024", "Importo": "1.234,56", "Descrizione": " Stipendio ", "Valuta": "chf"},
			check: func(t *testing.T, tx Transaction) {
				if !tx.Amount.Equal(decimal.RequireFromString("1234.56")) {
					t.Errorf("Amount = %s, want 1234.56", tx.Amount)
				}
				if want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC); !tx.Date.Equal(want) {
					t.Errorf("Date = %v, want %v", tx.Date, want)
				}
				if tx.Currency != "CHF" {
					t.Errorf("Currency = %q, want CHF", tx.Currency)
				}
				if tx.Description != "Stipendio" || tx.Name != "" {
					t.Errorf("Name/Description = %q/%q", tx.Name, tx.Description)
				}
				if !tx.IsImported || tx.Recurrence.Frequency != FrequencyNone {
					t.Errorf("provenance = imported %v, frequency %s", tx.IsImported, tx.Recurrence.Frequency)
				}
				if tx.AccountID != account {
					t.Errorf("AccountID = %s, want %s", tx.AccountID, account)
				}
			},
		},
		{
			name: "currency too long falls back",
			row:  map[string]string{"Data": "01/02/2024", "Importo": "5", "Valuta": "EURO"},
			check: func(t *testing.T, tx Transaction) {
				if tx.Currency != DefaultCurrency {
					t.Errorf("Currency = %q, want %q", tx.Currency, DefaultCurrency)
				}
				if tx.Name != DefaultName {
					t.Errorf("Name = %q, want %q", tx.Name, DefaultName)
				}
			},
		},
		{name: "missing date", row: map[string]string{"Data": "  ", "Importo": "5"}, wantMsg: "Date is required"},
		{name: "bad date", row: map[string]string{"Data": "2024-01-15", "Importo": "5"}, wantMsg: "Invalid date format: 2024-01-15"},
		{name: "missing amount", row: map[string]string{"Data": "15/01/2024"}, wantMsg: "Amount is required"},
		{name: "bad amount", row: map[string]string{"Data": "15/01/2024", "Importo": "12,3,4"}, wantMsg: "Invalid amount format: 12,3,4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.NormalizeRow(7, tt.row)
			if res.RowNumber != 7 {
				t.Errorf("RowNumber = %d, want 7", res.RowNumber)
			}
			if tt.wantMsg != "" {
				if res.Failure == nil {
					t.Fatalf("expected failure %q, got candidate %+v", tt.wantMsg, res.Candidate)
				}
				if res.Failure.Message != tt.wantMsg {
					t.Errorf("Message = %q, want %q", res.Failure.Message, tt.wantMsg)
				}
				if len(res.Failure.RawRow) != len(tt.row) {
					t.Errorf("RawRow = %v, want %v", res.Failure.RawRow, tt.row)
				}
				return
			}
			if res.Failure != nil {
				t.Fatalf("unexpected failure: %+v", res.Failure)
			}
			tt.check(t, *res.Candidate)
		})
	}
}

func TestNormalizeRow_UnmappedCurrencyDefaults(t *testing.T) {
	n := NewRowNormalizer(testMappings, Locale{}, uuid.New())
	res := n.NormalizeRow(1, map[string]string{"Date": "2024-03-01", "Amount": "-9.99", "Description": "Coffee"})
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if res.Candidate.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", res.Candidate.Currency)
	}
}

func TestNormalizeRow_TruncatesLongText(t *testing.T) {
	n := NewRowNormalizer(ColumnMappings{"D": FieldDate, "A": FieldAmount, "N": FieldName, "X": FieldDescription}, Locale{}, uuid.New())
	res := n.NormalizeRow(1, map[string]string{
		"D": "2024-03-01",
		"A": "1",
		"N": strings.Repeat("é", MaxNameLength+10),
		"X": strings.Repeat("x", MaxDescriptionLength+1),
	})
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if got := len([]rune(res.Candidate.Name)); got != MaxNameLength {
		t.Errorf("name length = %d, want %d", got, MaxNameLength)
	}
	if got := len(res.Candidate.Description); got != MaxDescriptionLength {
		t.Errorf("description length = %d, want %d", got, MaxDescriptionLength)
	}
}

func TestNormalize_PartialFailure(t *testing.T) {
	rows := make([]map[string]string, 10)
	for i := range rows {
		rows[i] = map[string]string{
			"Date":        fmt.Sprintf("2024-02-%02d", i+1),
			"Amount":      fmt.Sprintf("%d.50", i+1),
			"Description": fmt.Sprintf("row %d", i+1),
		}
	}
	rows[3]["Amount"] = "four"

	n := NewRowNormalizer(testMappings, Locale{DateFormat: "yyyy-MM-dd"}, uuid.New())
	candidates, failures, err := n.Normalize(context.Background(), rows, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(candidates) != 9 {
		t.Errorf("candidates = %d, want 9", len(candidates))
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	f := failures[0]
	if f.RowNumber != 4 {
		t.Errorf("RowNumber = %d, want 4", f.RowNumber)
	}
	if f.Message != "Invalid amount format: four" {
		t.Errorf("Message = %q", f.Message)
	}
	if f.RawRow["Amount"] != "four" || f.RawRow["Description"] != "row 4" {
		t.Errorf("RawRow = %v, want original cells", f.RawRow)
	}
}

func TestNormalize_SkipKeepsRowNumbers(t *testing.T) {
	rows := []map[string]string{
		{"Date": "Opening balance", "Amount": ""},
		{"Date": "2024-02-01", "Amount": "1"},
		{"Date": "2024-02-02", "Amount": "x"},
	}
	n := NewRowNormalizer(testMappings, Locale{}, uuid.New())
	candidates, failures, err := n.Normalize(context.Background(), rows, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %d, want 1", len(candidates))
	}
	if len(failures) != 1 || failures[0].RowNumber != 3 {
		t.Errorf("failures = %+v, want one failure on row 3", failures)
	}
}

func TestNormalize_RoundTrip(t *testing.T) {
	const n = 250
	var b strings.Builder
	b.WriteString("Date;Amount;Description\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%02d/03/2024;%d,%02d;item %d\n", i%28+1, i, i%100, i)
	}

	r := strings.NewReader(b.String())
	format, err := DetectFormat(r, "export.csv")
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	table, err := ParseTable(context.Background(), r, format)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}

	norm := NewRowNormalizer(testMappings, Locale{DateFormat: "dd/MM/yyyy", DecimalSeparator: ","}, uuid.New())
	candidates, failures, err := norm.Normalize(context.Background(), table.Rows, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(candidates) != n || len(failures) != 0 {
		t.Errorf("candidates = %d, failures = %d; want %d, 0", len(candidates), len(failures), n)
	}
}

func TestNormalize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewRowNormalizer(testMappings, Locale{}, uuid.New())
	_, _, err := n.Normalize(ctx, []map[string]string{{"Date": "2024-01-01", "Amount": "1"}}, 0)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  plain ", "plain"},
		{`="00123"`, "00123"},
		{`=" 12,50 "`, "12,50"},
		{`="`, `="`},
		{`"quoted"`, `"quoted"`},
	}
	for _, tt := range tests {
		if got := cleanCell(tt.in); got != tt.want {
			t.Errorf("cleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
