package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func parseString(t *testing.T, name, content string) *ParsedTable {
	t.Helper()
	r := strings.NewReader(content)
	f, err := DetectFormat(r, name)
	if err != nil {
		t.Fatalf("DetectFormat: %v", err)
	}
	table, err := ParseTable(context.Background(), r, f)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	return table
}

func TestParseTable_Delimited(t *testing.T) {
	table := parseString(t, "in.csv", "\ufeffDate,Amount,Description\n"+
		"2024-01-01,10.00,\"Coffee, large\"\n"+
		"\n"+
		"2024-01-02,5\n"+
		",,\n"+
		"2024-01-03,1,x,extra\n")

	if want := []string{"Date", "Amount", "Description"}; !slices.Equal(table.Headers, want) {
		t.Fatalf("Headers = %q, want %q", table.Headers, want)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(table.Rows))
	}
	if got := table.Rows[0]["Description"]; got != "Coffee, large" {
		t.Errorf("quoted cell = %q", got)
	}
	if got, ok := table.Rows[1]["Description"]; !ok || got != "" {
		t.Errorf("short row Description = %q, %v; want empty, present", got, ok)
	}
	if len(table.Rows[2]) != 3 {
		t.Errorf("long row has %d cells, want 3", len(table.Rows[2]))
	}
}

func TestParseTable_DuplicateHeaders(t *testing.T) {
	table := parseString(t, "in.csv", "Amount,Amount,Amount_2\n1,2,3\n")

	want := []string{"Amount", "Amount_2", "Amount_2_2"}
	if !slices.Equal(table.Headers, want) {
		t.Fatalf("Headers = %q, want %q", table.Headers, want)
	}
	row := table.Rows[0]
	if row["Amount"] != "1" || row["Amount_2"] != "2" || row["Amount_2_2"] != "3" {
		t.Errorf("row = %v", row)
	}
}

func TestParseTable_BlankDelimitedHeaders(t *testing.T) {
	table := parseString(t, "in.csv", "Date,,,Amount\n2024-01-01,x,y,5\n")

	want := []string{"Date", "Column2", "Column3", "Amount"}
	if !slices.Equal(table.Headers, want) {
		t.Fatalf("Headers = %q, want %q", table.Headers, want)
	}
	row := table.Rows[0]
	if row["Column2"] != "x" || row["Column3"] != "y" || row["Amount"] != "5" {
		t.Errorf("row = %v", row)
	}
}

func TestParseTable_Latin1Semicolon(t *testing.T) {
	content := "Date;Libell\xe9;Montant\n01/02/2024;Caf\xe9;-3,50\n"
	table := parseString(t, "releve.csv", content)

	if table.Headers[1] != "Libellé" {
		t.Errorf("header = %q, want Libellé", table.Headers[1])
	}
	if got := table.Rows[0]["Libellé"]; got != "Café" {
		t.Errorf("cell = %q, want Café", got)
	}
}

func TestParseTable_HeaderOnly(t *testing.T) {
	table := parseString(t, "in.csv", "Date,Amount\n")
	if len(table.Headers) != 2 || len(table.Rows) != 0 {
		t.Errorf("table = %+v, want 2 headers and no rows", table)
	}
}

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseTable_XLSX(t *testing.T) {
	data := xlsxBytes(t, [][]any{
		{"Data", "", "Importo"},
		{"15/01/2024", "ignored", "12,50"},
		{"16/01/2024"},
		{"17/01/2024", "", "1", "overflow"},
	})

	r := bytes.NewReader(data)
	f, err := DetectFormat(r, "estratto.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	table, err := ParseTable(context.Background(), r, f)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}

	want := []string{"Data", "Column2", "Importo", "Column4"}
	if !slices.Equal(table.Headers, want) {
		t.Fatalf("Headers = %q, want %q", table.Headers, want)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(table.Rows))
	}
	if got := table.Rows[1]["Importo"]; got != "" {
		t.Errorf("missing cell = %q, want empty", got)
	}
	if got := table.Rows[2]["Column4"]; got != "overflow" {
		t.Errorf("Column4 = %q, want overflow", got)
	}
}

func TestParseTable_XLSXBlankRowKeepsPosition(t *testing.T) {
	data := xlsxBytes(t, [][]any{
		{"Date", "Amount"},
		{"2024-01-01", "1"},
		{},
		{"2024-01-02", "bad"},
		{},
	})

	table, err := ParseTable(context.Background(), bytes.NewReader(data), Format{Kind: KindXLSX})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Rows = %d, want 3", len(table.Rows))
	}
	if got, ok := table.Rows[1]["Date"]; !ok || got != "" {
		t.Errorf("blank row Date = %q, %v; want empty, present", got, ok)
	}

	n := NewRowNormalizer(testMappings, Locale{}, uuid.New())
	candidates, failures, err := n.Normalize(context.Background(), table.Rows, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %d, want 1", len(candidates))
	}
	want := []RowFailure{
		{RowNumber: 2, Message: "Date is required"},
		{RowNumber: 3, Message: "Invalid amount format: bad"},
	}
	if len(failures) != len(want) {
		t.Fatalf("failures = %+v, want %d", failures, len(want))
	}
	for i, w := range want {
		if failures[i].RowNumber != w.RowNumber || failures[i].Message != w.Message {
			t.Errorf("failure %d = row %d %q, want row %d %q",
				i, failures[i].RowNumber, failures[i].Message, w.RowNumber, w.Message)
		}
	}
}

func TestParseTable_XLS(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "statement.xls"))
	if err != nil {
		t.Fatal(err)
	}

	r := bytes.NewReader(data)
	f, err := DetectFormat(r, "statement.xls")
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != KindXLS {
		t.Fatalf("Kind = %q, want %q", f.Kind, KindXLS)
	}
	table, err := ParseTable(context.Background(), r, f)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}

	want := []string{"Data", "Column2", "Importo", "Column4"}
	if !slices.Equal(table.Headers, want) {
		t.Fatalf("Headers = %q, want %q", table.Headers, want)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("Rows = %d, want 4", len(table.Rows))
	}

	tests := []struct {
		row    int
		header string
		want   string
	}{
		{0, "Data", "15/01/2024"},
		{0, "Column2", "Caffè"},
		{0, "Importo", "-12.5"},
		{0, "Column4", ""},
		{1, "Data", ""},
		{1, "Importo", ""},
		{2, "Importo", "oops"},
		{2, "Column4", "7"},
		{3, "Data", "17/01/2024"},
		{3, "Importo", "3"},
	}
	for _, tt := range tests {
		got, ok := table.Rows[tt.row][tt.header]
		if !ok || got != tt.want {
			t.Errorf("Rows[%d][%q] = %q, %v; want %q", tt.row, tt.header, got, ok, tt.want)
		}
	}
}

func TestParseTable_EmptyXLSX(t *testing.T) {
	data := xlsxBytes(t, nil)
	table, err := ParseTable(context.Background(), bytes.NewReader(data), Format{Kind: KindXLSX})
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(table.Rows) != 0 || len(table.Headers) != 0 {
		t.Errorf("table = %+v, want empty", table)
	}
}

func TestUniqueHeaders(t *testing.T) {
	got := uniqueHeaders([]string{"A", "B", "A", "A_2", "A"})
	want := []string{"A", "B", "A_2", "A_2_2", "A_3"}
	if !slices.Equal(got, want) {
		t.Errorf("uniqueHeaders() = %q, want %q", got, want)
	}
}
