package report

import "errors"

// Domain errors for the report package.
var (
	// ErrInvalidReport is returned when a CSV report cannot be parsed.
	ErrInvalidReport = errors.New("report: invalid report")

	// ErrInvalidOutcome is returned when recording an outcome with an
	// empty device name or an unknown status.
	ErrInvalidOutcome = errors.New("report: invalid outcome")

	// ErrRowNotFound is returned when an activation update names a row
	// that does not exist.
	ErrRowNotFound = errors.New("report: row not found")

	// ErrPersistFailed is returned when the report file cannot be written.
	// The in-memory report is unaffected.
	ErrPersistFailed = errors.New("report: persist failed")
)
