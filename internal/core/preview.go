package core

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// ImportFile is an uploaded statement held in memory.
type ImportFile struct {
	Name string
	Data []byte
}

// PreviewResult is what a user sees before confirming a mapping.
type PreviewResult struct {
	Headers         []string            `json:"headers"`
	DetectedColumns HeaderMapping       `json:"detectedColumns"`
	SampleRows      []map[string]string `json:"sampleRows"`
	TotalRows       int                 `json:"totalRows"`
}

// PreviewImport detects, parses and maps file without writing anything.
func (s *Service) PreviewImport(ctx context.Context, file ImportFile) (*PreviewResult, error) {
	if err := s.checkFile(file); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	start := time.Now()
	table, format, err := s.loadTable(ctx, file)
	if err != nil {
		return nil, err
	}

	n := min(len(table.Rows), s.cfg.SampleRows)
	result := &PreviewResult{
		Headers:         table.Headers,
		DetectedColumns: DetectColumns(table.Headers),
		SampleRows:      table.Rows[:n],
		TotalRows:       len(table.Rows),
	}

	s.logger.Debug("import previewed",
		"file", file.Name,
		"format", format.Kind,
		"encoding", format.Encoding,
		"rows", result.TotalRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// checkFile rejects requests that cannot be imported at all.
func (s *Service) checkFile(file ImportFile) error {
	if file.Name == "" && file.Data == nil {
		return ErrNoFile
	}
	if _, err := KindForFile(file.Name); err != nil {
		return err
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, file.Name)
	}
	if int64(len(file.Data)) > s.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(file.Data), s.cfg.MaxFileSize)
	}
	return nil
}

func (s *Service) loadTable(ctx context.Context, file ImportFile) (*ParsedTable, Format, error) {
	r := bytes.NewReader(file.Data)
	format, err := DetectFormat(r, file.Name)
	if err != nil {
		return nil, Format{}, err
	}
	table, err := ParseTable(ctx, r, format)
	if err != nil {
		return nil, format, fmt.Errorf("parse %s: %w", file.Name, err)
	}
	return table, format, nil
}
