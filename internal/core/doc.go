// Package core provides the business logic for statement imports and
// recurring transaction materialization.
//
// This package holds all domain logic independent of any transport or
// storage technology. It is used by the HTTP server, the CLI, and tests
// without modification; persistence is reached only through
// [TransactionStore].
//
// # Import Pipeline
//
// An import is two request/response calls. [Service.PreviewImport] runs:
//
//  1. [DetectFormat]: file extension, text encoding and delimiter
//  2. [ParseTable]: headers plus one string map per row
//  3. [DetectColumns]: a suggested [CanonicalField] per header
//
// The user confirms or corrects the mapping, then [Service.ConfirmImport]
// repeats steps 1 and 2 and continues with:
//
//  4. [RowNormalizer]: one candidate [Transaction] or [RowFailure] per row
//  5. [BatchInserter]: drops duplicates of stored records and inserts the
//     rest in one storage transaction
//
// A bad row is reported in the [ImportOutcome] and never aborts the import.
// Only request errors (no file, unsupported format, unknown account, invalid
// mapping) and storage failures fail the call.
//
// # Recurring Templates
//
// A [Materializer] walks every active template and creates one instance
// per due occurrence, never re-creating an occurrence that already has an
// instance. [Advance] and [DueOccurrences] are pure and hold the calendar
// rules. [Materializer.StartRecurringScheduler] runs passes on a ticker.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE005: File errors (size, encoding, format, missing)
//   - MAP001, ACC001: Mapping and account errors
//   - VAL001-VAL003: Row validation errors
//   - DB004-DB008: Storage errors
//   - IMP002-IMP005: Import capacity, cancellation and timeout
//   - REQ001, REC001: Malformed requests and overlapping recurring runs
package core
