// Package errs defines the sentinel error kinds shared across the mining
// pipeline (spec.md §7). Components wrap these with fmt.Errorf("...: %w")
// so callers can still match with errors.Is.
package errs

import "errors"

var (
	// ErrStorageUnavailable signals a recorder connection failure. The
	// Engine retries once before aborting the run.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSchemaMismatch signals the recorder is missing expected tables
	// or columns. Fatal -- not retried.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrStorageTimeout signals a query exceeded its 30s budget. The run
	// aborts cleanly with no partial patterns stored.
	ErrStorageTimeout = errors.New("storage timeout")

	// ErrEmptyInput signals no events were found in the requested range.
	// Not fatal: the Engine reports zero patterns stored.
	ErrEmptyInput = errors.New("no events in range")

	// ErrInsufficientData signals fewer than the minimum transactions or
	// occurrences required to mine at all. Not an error per se -- callers
	// treat it as an empty result set.
	ErrInsufficientData = errors.New("insufficient data to mine")

	// ErrMalformed signals an attribute JSON blob that could not be
	// parsed. Callers log and skip the offending row.
	ErrMalformed = errors.New("malformed attribute data")
)
