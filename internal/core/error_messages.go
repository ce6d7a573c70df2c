package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// Codes by category:
//
//	FILE001 - File too large             FILE002 - Unsupported file type
//	FILE003 - Encoding error             FILE004 - No file provided
//	FILE005 - Empty file
//	MAP001  - Invalid column mapping     ACC001  - Account not found
//	VAL001  - Invalid date               VAL002  - Invalid amount
//	VAL003  - Required field missing
//	DB004   - Connection refused         DB006   - Timeout
//	DB007   - Deadlock                   DB008   - Storage failure
//	IMP002  - Too many imports           IMP004  - Request cancelled
//	IMP005  - Request timeout            RATE001 - Rate limited
//	ERR000  - Unknown error
//
// Sentinel errors are matched with errors.Is before any text pattern, so
// wrapped errors keep their code. Text patterns are matched
// case-insensitively and the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the importer
	// cannot read. It aborts the import before any row is processed.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoFile is returned when the request carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("empty file")

	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidMapping is returned for mappings that name unknown fields or
	// headers, or assign one field twice.
	ErrInvalidMapping = errors.New("invalid column mapping")

	// ErrAccountNotFound is returned when the target account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps failures committing an accepted batch.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidRequest marks malformed request fields such as an account
	// id that is not a UUID.
	ErrInvalidRequest = errors.New("invalid request")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is checked in order with errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrFileTooLarge, UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{ErrUnsupportedFormat, UserMessage{"This file type is not supported", "Upload a .csv, .txt, .tsv, .xlsx or .xls file", "FILE002"}},
	{ErrNoFile, UserMessage{"No file was selected", "Please select a statement file to upload", "FILE004"}},
	{ErrEmptyFile, UserMessage{"The uploaded file is empty", "Please upload a file with data rows", "FILE005"}},
	{ErrInvalidMapping, UserMessage{"The column mapping is not valid", "Map each field to at most one column that exists in the file", "MAP001"}},
	{ErrAccountNotFound, UserMessage{"The selected account does not exist", "Choose an existing account and try again", "ACC001"}},
	{ErrInvalidRequest, UserMessage{"The request could not be understood", "Check the submitted form fields", "REQ001"}},
	{ErrTooManyImports, UserMessage{"Too many imports in progress", "Please wait a moment and try again", "IMP002"}},
	{ErrMaterializerBusy, UserMessage{"Recurring transactions are already being generated", "Wait for the current run to finish", "REC001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "IMP004"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or try again later", "IMP005"}},
	{ErrStorage, UserMessage{"Saving the imported transactions failed", "Nothing was saved. Please retry the import", "DB008"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"invalid date", UserMessage{"Invalid date format detected", "Check the date format selected for this import", "VAL001"}},
	{"invalid amount", UserMessage{"Invalid amount format detected", "Check the decimal and thousands separators", "VAL002"}},
	{"is required", UserMessage{"Required field is empty", "Ensure date and amount columns have values", "VAL003"}},
	{"encoding", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
