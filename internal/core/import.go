package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ConfirmRequest is the user-confirmed import configuration.
type ConfirmRequest struct {
	ColumnMappings ColumnMappings
	Locale         Locale
	RowsToSkip     int
	AccountID      uuid.UUID
}

// ConfirmImport parses file under the confirmed mapping and stores every
// valid row that does not duplicate an existing transaction. Row problems
// are reported in the outcome; the call itself fails only for request
// errors (file, account, mapping) or when storing the batch fails.
func (s *Service) ConfirmImport(ctx context.Context, file ImportFile, req ConfirmRequest) (*ImportOutcome, error) {
	if err := s.checkFile(file); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()

	ok, err := s.store.AccountExists(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: look up account: %w", ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, req.AccountID)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	importID := uuid.NewString()
	log := s.logger.With("import_id", importID, "account_id", req.AccountID, "file", file.Name)
	start := time.Now()

	table, _, err := s.loadTable(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := ValidateMappings(req.ColumnMappings, table.Headers); err != nil {
		return nil, err
	}

	normalizer := NewRowNormalizer(req.ColumnMappings, req.Locale, req.AccountID)
	candidates, failures, err := normalizer.Normalize(ctx, table.Rows, req.RowsToSkip)
	if err != nil {
		return nil, err
	}

	inserted, err := s.inserter.Insert(ctx, candidates)
	if err != nil {
		log.Error("import failed", "error", err, "candidates", len(candidates))
		return nil, err
	}

	outcome := &ImportOutcome{
		SuccessCount:   len(inserted.Created),
		FailureCount:   len(failures),
		DuplicateCount: inserted.Duplicates,
		Failures:       failures,
		Created:        inserted.Created,
	}
	if outcome.Failures == nil {
		outcome.Failures = []RowFailure{}
	}

	log.Info("import completed",
		"rows", len(table.Rows),
		"inserted", outcome.SuccessCount,
		"duplicates", outcome.DuplicateCount,
		"failed", outcome.FailureCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}

// ValidateMappings checks a confirmed mapping against the file's headers:
// every header must exist and no field other than Unknown may be assigned
// twice. Date and Amount may be left unmapped; rows then fail individually.
func ValidateMappings(mappings ColumnMappings, headers []string) error {
	seen := make(map[CanonicalField]string, len(mappings))
	for header, field := range mappings {
		if !slices.Contains(canonicalFields, field) {
			return fmt.Errorf("%w: unknown field %q for header %q", ErrInvalidMapping, field, header)
		}
		if !slices.Contains(headers, header) {
			return fmt.Errorf("%w: header %q is not in the file", ErrInvalidMapping, header)
		}
		if field == FieldUnknown {
			continue
		}
		if other, dup := seen[field]; dup {
			return fmt.Errorf("%w: %s mapped from both %q and %q", ErrInvalidMapping, field, other, header)
		}
		seen[field] = header
	}
	return nil
}
