package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const italianCSV = "Data;Importo;Descrizione\n" +
	"15/01/2024;-1.234,56;Affitto\n" +
	"16/01/2024;12,00;Rimborso\n" +
	"17/01/2024;abc;Errore\n" +
	"18/01/2024;3,10;Caffè\n" +
	"19/01/2024;7,00;Pranzo\n" +
	"20/01/2024;1,00;Bus\n"

func newTestService(t *testing.T, accounts ...uuid.UUID) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore(accounts...)
	svc := NewService(store, ServiceConfig{MaxFileSize: 1 << 20}, WithClock(fixedClock{day(2024, 2, 1)}))
	return svc, store
}

func TestPreviewImport(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.PreviewImport(context.Background(), ImportFile{Name: "estratto.csv", Data: []byte(italianCSV)})
	if err != nil {
		t.Fatalf("PreviewImport: %v", err)
	}
	if res.TotalRows != 6 {
		t.Errorf("TotalRows = %d, want 6", res.TotalRows)
	}
	if len(res.SampleRows) != 5 {
		t.Errorf("SampleRows = %d, want 5", len(res.SampleRows))
	}
	if got := res.DetectedColumns["Importo"]; got.SuggestedField != FieldAmount || got.Confidence != 100 {
		t.Errorf("Importo = %+v", got)
	}
	if store.count() != 0 {
		t.Error("preview must not write")
	}
}

func TestPreviewImport_RequestErrors(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		file ImportFile
		want error
	}{
		{"no file", ImportFile{}, ErrNoFile},
		{"unsupported", ImportFile{Name: "x.pdf", Data: []byte("%PDF")}, ErrUnsupportedFormat},
		{"empty", ImportFile{Name: "x.csv", Data: []byte{}}, ErrEmptyFile},
		{"too large", ImportFile{Name: "x.csv", Data: make([]byte, 2<<20)}, ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PreviewImport(context.Background(), tt.file)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func italianRequest(account uuid.UUID) ConfirmRequest {
	return ConfirmRequest{
		ColumnMappings: ColumnMappings{"Data": FieldDate, "Importo": FieldAmount, "Descrizione": FieldDescription},
		Locale:         Locale{DateFormat: "dd/MM/yyyy", DecimalSeparator: ",", ThousandsSeparator: "."},
		AccountID:      account,
	}
}

func TestConfirmImport(t *testing.T) {
	account := uuid.New()
	svc, store := newTestService(t, account)
	ctx := context.Background()
	file := ImportFile{Name: "estratto.csv", Data: []byte(italianCSV)}

	out, err := svc.ConfirmImport(ctx, file, italianRequest(account))
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if out.SuccessCount != 5 || out.FailureCount != 1 || out.DuplicateCount != 0 {
		t.Errorf("outcome = %d/%d/%d, want 5/1/0", out.SuccessCount, out.FailureCount, out.DuplicateCount)
	}
	if len(out.Failures) != 1 || out.Failures[0].RowNumber != 3 || out.Failures[0].RawRow["Importo"] != "abc" {
		t.Errorf("Failures = %+v", out.Failures)
	}
	if store.count() != 5 {
		t.Errorf("stored = %d, want 5", store.count())
	}

	// Importing the same statement again only finds duplicates.
	out, err = svc.ConfirmImport(ctx, file, italianRequest(account))
	if err != nil {
		t.Fatalf("second ConfirmImport: %v", err)
	}
	if out.SuccessCount != 0 || out.DuplicateCount != 5 || out.FailureCount != 1 {
		t.Errorf("second outcome = %d/%d/%d, want 0/1/5", out.SuccessCount, out.FailureCount, out.DuplicateCount)
	}
	if store.count() != 5 {
		t.Errorf("stored = %d after re-import, want 5", store.count())
	}
}

func TestConfirmImport_RowsToSkip(t *testing.T) {
	account := uuid.New()
	svc, _ := newTestService(t, account)

	req := italianRequest(account)
	req.RowsToSkip = 3
	out, err := svc.ConfirmImport(context.Background(), ImportFile{Name: "e.csv", Data: []byte(italianCSV)}, req)
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if out.SuccessCount != 3 || out.FailureCount != 0 {
		t.Errorf("outcome = %d ok, %d failed; want 3, 0", out.SuccessCount, out.FailureCount)
	}
}

func TestConfirmImport_RequestErrors(t *testing.T) {
	account := uuid.New()
	svc, store := newTestService(t, account)
	file := ImportFile{Name: "e.csv", Data: []byte(italianCSV)}

	tests := []struct {
		name   string
		mutate func(r *ConfirmRequest)
		want   error
	}{
		{"unknown account", func(r *ConfirmRequest) { r.AccountID = uuid.New() }, ErrAccountNotFound},
		{"header not in file", func(r *ConfirmRequest) { r.ColumnMappings["Saldo"] = FieldBalance }, ErrInvalidMapping},
		{"field twice", func(r *ConfirmRequest) { r.ColumnMappings["Descrizione"] = FieldAmount }, ErrInvalidMapping},
		{"unknown field", func(r *ConfirmRequest) { r.ColumnMappings["Descrizione"] = "Memo" }, ErrInvalidMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := italianRequest(account)
			tt.mutate(&req)
			_, err := svc.ConfirmImport(context.Background(), file, req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if store.count() != 0 {
		t.Errorf("stored = %d after rejected requests, want 0", store.count())
	}
}

func TestConfirmImport_StorageFailure(t *testing.T) {
	account := uuid.New()
	svc, store := newTestService(t, account)
	store.addRangeErr = errors.New("connection reset")

	_, err := svc.ConfirmImport(context.Background(), ImportFile{Name: "e.csv", Data: []byte(italianCSV)}, italianRequest(account))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}
}

func TestConfirmImport_RoundTrip(t *testing.T) {
	account := uuid.New()
	svc, _ := newTestService(t, account)

	const n = 120
	var b strings.Builder
	b.WriteString("Booking Date,Amount,Payee\n")
	start := day(2023, 1, 1)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%d.%02d,Payee %d\n", start.AddDate(0, 0, i).Format(time.DateOnly), i, i%100, i)
	}

	out, err := svc.ConfirmImport(context.Background(), ImportFile{Name: "bank.csv", Data: []byte(b.String())}, ConfirmRequest{
		ColumnMappings: ColumnMappings{"Booking Date": FieldDate, "Amount": FieldAmount, "Payee": FieldName},
		Locale:         Locale{DateFormat: "yyyy-MM-dd", DecimalSeparator: "."},
		AccountID:      account,
	})
	if err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if out.SuccessCount != n || out.FailureCount != 0 || len(out.Created) != n {
		t.Errorf("outcome = %+v, want %d created", out, n)
	}
}

func TestValidateMappings(t *testing.T) {
	headers := []string{"A", "B", "C"}
	if err := ValidateMappings(ColumnMappings{"A": FieldDate, "B": FieldUnknown, "C": FieldUnknown}, headers); err != nil {
		t.Errorf("valid mapping rejected: %v", err)
	}
	if err := ValidateMappings(ColumnMappings{}, headers); err != nil {
		t.Errorf("empty mapping rejected: %v", err)
	}
}
