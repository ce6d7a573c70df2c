package core

// tabular.go converts statement files into a ParsedTable regardless of their
// container format. Delimited text uses the encoding and delimiter found by
// DetectFormat; spreadsheets read the first sheet with row 1 as headers.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// xlsCharset is the code page used for legacy BIFF5 strings.
const xlsCharset = "cp1252"

// ParseTable reads r according to format. Short rows are padded with empty
// cells and blank headers are named ColumnN. Blank delimited rows are dropped;
// blank spreadsheet rows before the last used row are kept so row numbers match
// the sheet. ctx is checked every ContextCheckInterval rows.
func ParseTable(ctx context.Context, r io.ReadSeeker, format Format) (*ParsedTable, error) {
	var (
		records [][]string
		err     error
	)

	switch format.Kind {
	case KindDelimited:
		records, err = readDelimited(ctx, r, format)
	case KindXLSX:
		records, err = readXLSX(r)
	case KindXLS:
		records, err = readXLS(r)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedFormat, format.Kind)
	}
	if err != nil {
		return nil, err
	}

	return buildTable(ctx, records, format.Kind != KindDelimited)
}

// readDelimited decodes and splits delimited text into records.
func readDelimited(ctx context.Context, r io.Reader, format Format) ([][]string, error) {
	decoded, err := NewDecodingReader(r, format.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = format.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited text: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// readXLSX returns every row of the first worksheet.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// readXLS returns every row of the first worksheet of a BIFF workbook.
func readXLS(r io.ReadSeeker) ([][]string, error) {
	wb, err := xls.OpenReader(r, xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, nil
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, trimTrailingEmpty(cells))
	}
	return rows, nil
}

// xlsRow returns row i, or nil when the sheet holds no record for it.
// WorkSheet.Row dereferences the missing entry, so the panic is recovered.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// buildTable turns raw records into a ParsedTable. For spreadsheets the
// width is the widest row.
func buildTable(ctx context.Context, records [][]string, spreadsheet bool) (*ParsedTable, error) {
	table := &ParsedTable{Headers: []string{}, Rows: []map[string]string{}}
	if spreadsheet {
		for len(records) > 1 && isEmptyRow(records[len(records)-1]) {
			records = records[:len(records)-1]
		}
	}
	if len(records) == 0 {
		return table, nil
	}

	raw := records[0]
	width := len(raw)
	if spreadsheet {
		for _, rec := range records {
			if len(rec) > width {
				width = len(rec)
			}
		}
	}

	headers := make([]string, width)
	for i := 0; i < width; i++ {
		var h string
		if i < len(raw) {
			h = strings.TrimSpace(raw[i])
		}
		if h == "" {
			h = "Column" + strconv.Itoa(i+1)
		}
		headers[i] = h
	}
	table.Headers = uniqueHeaders(headers)

	for i, rec := range records[1:] {
		if i%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !spreadsheet && isEmptyRow(rec) {
			continue
		}
		row := make(map[string]string, width)
		for c, h := range table.Headers {
			if c < len(rec) {
				row[h] = rec[c]
			} else {
				row[h] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// uniqueHeaders suffixes repeated headers with _2, _3, ... so that every
// header is a distinct row key.
func uniqueHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		seen[h]++
		if n := seen[h]; n > 1 {
			candidate := h + "_" + strconv.Itoa(n)
			for seen[candidate] > 0 {
				n++
				candidate = h + "_" + strconv.Itoa(n)
			}
			seen[candidate] = 1
			out[i] = candidate
			continue
		}
		out[i] = h
	}
	return out
}

func trimTrailingEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	return cells[:end]
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
