package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when a document has no data block start sentinel.
	ErrNoData = errors.New("no data block found")

	// ErrEmptyBlock is returned when a data block holds no usable rows.
	ErrEmptyBlock = errors.New("data block has no valid rows")

	// ErrNoInput is the only run-level failure: nothing to reconcile.
	ErrNoInput = errors.New("no report documents to reconcile")
)

// SourceParseError reports an identifier or document that could not yield a
// report date, version or data block. The document is excluded from the run.
type SourceParseError struct {
	ID     string
	Reason string
	Err    error
}

func (e *SourceParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %q: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("source %q: %s", e.ID, e.Reason)
}

func (e *SourceParseError) Unwrap() error { return e.Err }

// RowMalformedError describes a data row that was dropped.
type RowMalformedError struct {
	Line   int // 1-based line number in the source document, 0 if unknown
	Metric string
	Reason string
}

func (e *RowMalformedError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.Metric, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
