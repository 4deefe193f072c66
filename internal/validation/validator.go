// Package validation holds the schema checks every stage runs on its input
// tables, and struct validation for descriptors, recipes and scrape files.
package validation

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/finwrangle/internal/errors"
)

// Schema is the view of a table the checks need.
type Schema interface {
	HasColumn(name string) bool
	ColumnType(name string) (arrow.DataType, bool)
}

// ValidateColumns fails with ColumnNotFound on the first name df lacks.
func ValidateColumns(df Schema, op string, columns ...string) error {
	for _, column := range columns {
		if column == "" {
			return errors.NewInvalidInputError(op, "empty column name")
		}
		if !df.HasColumn(column) {
			return errors.NewColumnNotFoundError(op, column)
		}
	}
	return nil
}

// ValidateNumericColumns also requires every column to hold int64 or
// float64 values.
func ValidateNumericColumns(df Schema, op string, columns ...string) error {
	for _, column := range columns {
		dt, ok := df.ColumnType(column)
		if !ok {
			return errors.NewColumnNotFoundError(op, column)
		}
		if id := dt.ID(); id != arrow.INT64 && id != arrow.FLOAT64 {
			return errors.NewUnsupportedTypeError(op, column, dt.String())
		}
	}
	return nil
}

// ValidateLength compares a column length against the table length.
func ValidateLength(expected, actual int, op, what string) error {
	if expected != actual {
		return errors.NewInvalidInputError(op, fmt.Sprintf("%s: expected length %d, got %d", what, expected, actual))
	}
	return nil
}

// ValidateUniqueNames rejects empty and repeated column names.
func ValidateUniqueNames(op string, names ...string) error {
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			return errors.NewInvalidInputError(op, fmt.Sprintf("column %d has an empty name", i))
		}
		if _, dup := seen[name]; dup {
			return errors.NewInvalidInputError(op, fmt.Sprintf("duplicate column name %q", name))
		}
		seen[name] = struct{}{}
	}
	return nil
}
