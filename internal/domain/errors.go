package domain

import "errors"

// Batch-level failures. Callers wrap these with context and test with errors.Is.
var (
	// ErrInputValidation marks a missing, unreadable, or zero-length input.
	ErrInputValidation = errors.New("input validation failed")

	// ErrFormatViolation marks an input that fails format sniffing or
	// positional/delimited name parsing.
	ErrFormatViolation = errors.New("format violation")

	// ErrParameterCardinality marks a sweep fragment that does not carry
	// exactly one quantity.
	ErrParameterCardinality = errors.New("sweep fragment must carry exactly one quantity")

	// ErrFormatMismatch marks a decoded object whose kind does not match what
	// the merge path requires.
	ErrFormatMismatch = errors.New("object kind mismatch")

	// ErrDuplicateQuantity marks an insert of a quantity name already present
	// in the composite sweep.
	ErrDuplicateQuantity = errors.New("duplicate quantity")

	// ErrElevationMismatch marks a volume fragment whose elevation set does
	// not line up with the accumulated volume.
	ErrElevationMismatch = errors.New("elevation set mismatch")

	// ErrUnknownAttribute marks an attribute key outside the recognized set.
	ErrUnknownAttribute = errors.New("unknown attribute key")

	// ErrNoData marks a batch that produced nothing to persist.
	ErrNoData = errors.New("no raw data in batch")

	// ErrAlreadyProcessed marks a job whose archives were merged by an earlier run.
	ErrAlreadyProcessed = errors.New("archive already processed")
)
