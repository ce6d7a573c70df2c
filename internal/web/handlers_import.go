package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/google/uuid"
)

// formOverhead is allowed on top of the file size for the other form
// fields and multipart framing.
const formOverhead = 1 << 20

// maxMemory is how much of a multipart form is buffered in memory before
// spilling to temporary files.
const maxMemory = 32 << 20

// handlePreview parses an uploaded statement and suggests a column mapping.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	result, err := s.service.PreviewImport(r.Context(), file)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, result)
}

// handleConfirm imports an uploaded statement with the confirmed mapping.
// Row-level failures are part of a 200 response; only request and storage
// errors produce an error status.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	req, err := parseConfirmRequest(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	outcome, err := s.service.ConfirmImport(r.Context(), file, req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, outcome)
}

// readUpload reads the multipart "file" field into memory.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.ImportFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+formOverhead)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return core.ImportFile{}, core.ErrFileTooLarge
		case errors.Is(err, http.ErrNotMultipart):
			return core.ImportFile{}, core.ErrNoFile
		default:
			return core.ImportFile{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
		}
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return core.ImportFile{}, core.ErrNoFile
	}
	if err != nil {
		return core.ImportFile{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return core.ImportFile{}, fmt.Errorf("read upload: %w", err)
	}
	return core.ImportFile{Name: header.Filename, Data: data}, nil
}

// parseConfirmRequest reads the confirm form fields:
//
//	columnMappings      JSON object, header -> field name
//	accountId           UUID of the target account
//	rowsToSkip          optional, default 0
//	dateFormat, decimalSeparator, thousandsSeparator
func parseConfirmRequest(r *http.Request) (core.ConfirmRequest, error) {
	var req core.ConfirmRequest

	accountID, err := uuid.Parse(strings.TrimSpace(r.FormValue("accountId")))
	if err != nil {
		return req, fmt.Errorf("%w: accountId: %v", core.ErrInvalidRequest, err)
	}
	req.AccountID = accountID

	var raw map[string]string
	if err := json.Unmarshal([]byte(r.FormValue("columnMappings")), &raw); err != nil {
		return req, fmt.Errorf("%w: columnMappings: %v", core.ErrInvalidRequest, err)
	}
	req.ColumnMappings = make(core.ColumnMappings, len(raw))
	for header, name := range raw {
		field, err := core.ParseCanonicalField(name)
		if err != nil {
			return req, err
		}
		req.ColumnMappings[header] = field
	}

	if v := strings.TrimSpace(r.FormValue("rowsToSkip")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: rowsToSkip: %v", core.ErrInvalidRequest, err)
		}
		req.RowsToSkip = n
	}

	req.Locale = core.Locale{
		DateFormat:         r.FormValue("dateFormat"),
		DecimalSeparator:   r.FormValue("decimalSeparator"),
		ThousandsSeparator: r.FormValue("thousandsSeparator"),
	}
	return req, nil
}
