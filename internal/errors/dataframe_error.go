// Package errors provides standardized error types for table operations.
// Every stage of a wrangling pipeline returns a *DataFrameError carrying a
// Kind, so callers can decide per dataset whether to retry, substitute,
// skip or halt.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it with errors.Is.
type Kind int

const (
	// KindInternal is an unexpected failure inside an operation.
	KindInternal Kind = iota
	// KindSourceUnavailable is a network or file access failure. Recoverable by
	// retrying or falling back to a local copy.
	KindSourceUnavailable
	// KindParse is malformed row or column structure in a source.
	KindParse
	// KindUnparseableDate is a key value that matches no recognized date layout.
	KindUnparseableDate
	// KindInvalidPrice is a non-positive or missing price in a return computation.
	KindInvalidPrice
	// KindJoinKeyMismatch is a join whose inputs share no key values.
	KindJoinKeyMismatch
	// KindColumnNotFound is access to a column that the table does not declare.
	KindColumnNotFound
	// KindInvalidInput is an argument that fails validation.
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindSourceUnavailable: "source unavailable",
	KindParse:             "parse error",
	KindUnparseableDate:   "unparseable date",
	KindInvalidPrice:      "invalid price",
	KindJoinKeyMismatch:   "join key mismatch",
	KindColumnNotFound:    "column not found",
	KindInvalidInput:      "invalid input",
}

// String returns the human readable kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DataFrameError represents standardized errors across all table operations
type DataFrameError struct {
	Kind    Kind   // Failure classification
	Op      string // Operation name (e.g., "Read", "Join", "LogReturns")
	Column  string // Column name if applicable
	Row     int    // One-based data row number if applicable, zero otherwise
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *DataFrameError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	switch {
	case e.Column != "" && e.Row > 0:
		return fmt.Sprintf("%s: %s failed on column '%s' row %d: %s", e.Kind, e.Op, e.Column, e.Row, msg)
	case e.Column != "":
		return fmt.Sprintf("%s: %s failed on column '%s': %s", e.Kind, e.Op, e.Column, msg)
	default:
		return fmt.Sprintf("%s: %s failed: %s", e.Kind, e.Op, msg)
	}
}

// Unwrap returns the underlying cause for error wrapping support
func (e *DataFrameError) Unwrap() error {
	return e.Cause
}

// Is reports kind equality, so errors.Is(err, ErrParse) matches any parse
// failure regardless of operation or column.
func (e *DataFrameError) Is(target error) bool {
	var df *DataFrameError
	if errors.As(target, &df) {
		return e.Kind == df.Kind
	}
	return false
}

// KindOf returns the kind of the first DataFrameError in err's chain.
func KindOf(err error) (Kind, bool) {
	var df *DataFrameError
	if errors.As(err, &df) {
		return df.Kind, true
	}
	return KindInternal, false
}

// IsRetryable reports whether err is worth retrying or falling back on.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// Common error constructors for consistent error creation

// NewSourceUnavailableError creates an error for unreachable sources
func NewSourceUnavailableError(op, source string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindSourceUnavailable,
		Op:      op,
		Message: fmt.Sprintf("source %q unavailable", source),
		Cause:   cause,
	}
}

// NewParseError creates an error for malformed source content
func NewParseError(op, message string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindParse,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewUnparseableDateError creates an error for a key value matching no layout
func NewUnparseableDateError(op, column string, row int, value string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindUnparseableDate,
		Op:      op,
		Column:  column,
		Row:     row + 1,
		Message: fmt.Sprintf("value %q matches no known date layout", value),
	}
}

// NewInvalidPriceError creates an error for a price that breaks log returns
func NewInvalidPriceError(op, column string, row int, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidPrice,
		Op:      op,
		Column:  column,
		Row:     row + 1,
		Message: message,
	}
}

// NewJoinKeyMismatchError creates an error for joins without shared keys
func NewJoinKeyMismatchError(op string, leftKeys, rightKeys []string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindJoinKeyMismatch,
		Op:      op,
		Message: fmt.Sprintf("no overlapping values between keys %v and %v", leftKeys, rightKeys),
	}
}

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindColumnNotFound,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, column, typeName string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInternal,
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrSourceUnavailable = &DataFrameError{Kind: KindSourceUnavailable}
	ErrParse             = &DataFrameError{Kind: KindParse}
	ErrUnparseableDate   = &DataFrameError{Kind: KindUnparseableDate}
	ErrInvalidPrice      = &DataFrameError{Kind: KindInvalidPrice}
	ErrJoinKeyMismatch   = &DataFrameError{Kind: KindJoinKeyMismatch}
	ErrColumnNotFound    = &DataFrameError{Kind: KindColumnNotFound}
	ErrInvalidInput      = &DataFrameError{Kind: KindInvalidInput}
)
