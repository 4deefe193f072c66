// Package dataframe provides the in-memory table model shared by every
// pipeline stage: named, typed, equal-length columns with Arrow null
// bitmaps, plus the join, group-by and sort operations over them.
//
// A DataFrame owns its columns. Every operation returns a new DataFrame
// holding its own references, so callers release each result
// independently and inputs are never mutated.
package dataframe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
}

// New creates a new DataFrame from a slice of ISeries, taking ownership of
// them. Names and lengths are not checked; use NewChecked for untrusted input.
func New(series ...ISeries) *DataFrame {
	columns := make(map[string]ISeries)
	order := make([]string, 0, len(series))

	for _, s := range series {
		name := s.Name()
		columns[name] = s
		order = append(order, name)
	}

	return &DataFrame{
		columns: columns,
		order:   order,
	}
}

// NewChecked creates a DataFrame after verifying that column names are
// non-empty and unique and that all columns have the same length.
func NewChecked(cols ...ISeries) (*DataFrame, error) {
	names := make([]string, len(cols))
	for i, s := range cols {
		names[i] = s.Name()
	}
	if err := validation.ValidateUniqueNames("New", names...); err != nil {
		return nil, err
	}
	for _, s := range cols {
		if err := validation.ValidateLength(cols[0].Len(), s.Len(), "New", "column "+s.Name()); err != nil {
			return nil, err
		}
	}
	return New(cols...), nil
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	if len(df.order) == 0 {
		return []string{}
	}
	return append([]string(nil), df.order...)
}

// Len returns the number of rows
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	return df.columns[df.order[0]].Len()
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	s, exists := df.columns[name]
	return s, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// ColumnType returns the Arrow type of the named column.
func (df *DataFrame) ColumnType(name string) (arrow.DataType, bool) {
	s, exists := df.columns[name]
	if !exists {
		return nil, false
	}
	return s.DataType(), true
}

// Select returns a new DataFrame with only the specified columns, in the
// order given.
func (df *DataFrame) Select(names ...string) (*DataFrame, error) {
	if err := validation.ValidateColumns(df, "Select", names...); err != nil {
		return nil, err
	}
	if err := validation.ValidateUniqueNames("Select", names...); err != nil {
		return nil, err
	}

	cols := make([]ISeries, 0, len(names))
	for _, name := range names {
		cols = append(cols, df.columns[name].Rename(name))
	}
	return New(cols...), nil
}

// Drop returns a new DataFrame without the specified columns. Unknown names
// are ignored.
func (df *DataFrame) Drop(names ...string) *DataFrame {
	dropSet := make(map[string]bool, len(names))
	for _, name := range names {
		dropSet[name] = true
	}

	cols := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		if !dropSet[name] {
			cols = append(cols, df.columns[name].Rename(name))
		}
	}
	return New(cols...)
}

// Rename returns a new DataFrame with columns renamed according to mapping
// (old name -> new name).
func (df *DataFrame) Rename(mapping map[string]string) (*DataFrame, error) {
	for old := range mapping {
		if !df.HasColumn(old) {
			return nil, errors.NewColumnNotFoundError("Rename", old)
		}
	}

	names := make([]string, len(df.order))
	for i, name := range df.order {
		names[i] = name
		if renamed, ok := mapping[name]; ok {
			names[i] = renamed
		}
	}
	if err := validation.ValidateUniqueNames("Rename", names...); err != nil {
		return nil, err
	}

	cols := make([]ISeries, len(df.order))
	for i, name := range df.order {
		cols[i] = df.columns[name].Rename(names[i])
	}
	return New(cols...), nil
}

// WithColumn returns a new DataFrame with s added, or replacing the column of
// the same name in place. The DataFrame takes ownership of s.
func (df *DataFrame) WithColumn(s ISeries) (*DataFrame, error) {
	if s.Name() == "" {
		return nil, errors.NewInvalidInputError("WithColumn", "empty column name")
	}
	if df.Width() > 0 {
		if err := validation.ValidateLength(df.Len(), s.Len(), "WithColumn", "column "+s.Name()); err != nil {
			return nil, err
		}
	}

	cols := make([]ISeries, 0, len(df.order)+1)
	replaced := false
	for _, name := range df.order {
		if name == s.Name() {
			cols = append(cols, s)
			replaced = true
			continue
		}
		cols = append(cols, df.columns[name].Rename(name))
	}
	if !replaced {
		cols = append(cols, s)
	}
	return New(cols...), nil
}

// Slice returns rows [start, end). Bounds are clamped to the table.
func (df *DataFrame) Slice(start, end int) *DataFrame {
	start = max(0, min(start, df.Len()))
	end = max(start, min(end, df.Len()))

	cols := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		cols = append(cols, sliceSeries(df.columns[name], start, end))
	}
	return New(cols...)
}

// sliceSeries shares the Arrow buffers of s for rows [start, end).
func sliceSeries(s ISeries, start, end int) ISeries {
	arr := s.Array()
	defer arr.Release()

	sliced := array.NewSlice(arr, int64(start), int64(end))
	defer sliced.Release()

	out, err := series.FromArray(s.Name(), sliced)
	if err != nil {
		// Series only ever wraps the four supported array types.
		panic(err)
	}
	return out
}

// Head returns the first n rows
func (df *DataFrame) Head(n int) *DataFrame {
	return df.Slice(0, n)
}

// Gather returns a new DataFrame whose i-th row is row indices[i] of df.
// An index of -1 yields a row of missing values.
func (df *DataFrame) Gather(indices []int) *DataFrame {
	mem := memory.NewGoAllocator()
	cols := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		cols = append(cols, df.columns[name].Gather(indices, mem))
	}
	return New(cols...)
}

// DropNulls removes rows holding a missing value in any of the given
// columns, or in any column when none are given.
func (df *DataFrame) DropNulls(columns ...string) (*DataFrame, error) {
	if len(columns) == 0 {
		columns = df.order
	}
	if err := validation.ValidateColumns(df, "DropNulls", columns...); err != nil {
		return nil, err
	}

	keep := make([]int, 0, df.Len())
	for row := 0; row < df.Len(); row++ {
		if !df.rowHasNull(columns, row) {
			keep = append(keep, row)
		}
	}
	return df.Gather(keep), nil
}

func (df *DataFrame) rowHasNull(columns []string, row int) bool {
	for _, name := range columns {
		if df.columns[name].IsNull(row) {
			return true
		}
	}
	return false
}

// SortOptions configures Sort.
type SortOptions struct {
	By         []string // Sort keys, most significant first
	Descending bool
}

// Sort returns the rows ordered by the given columns. The sort is stable and
// missing values sort last in either direction.
func (df *DataFrame) Sort(opts SortOptions) (*DataFrame, error) {
	if len(opts.By) == 0 {
		return nil, errors.NewInvalidInputError("Sort", "no sort columns given")
	}
	if err := validation.ValidateColumns(df, "Sort", opts.By...); err != nil {
		return nil, err
	}

	keys := make([]ISeries, len(opts.By))
	for i, name := range opts.By {
		keys[i] = df.columns[name]
	}

	indices := make([]int, df.Len())
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return compareRows(keys, a, b, opts.Descending)
	})

	return df.Gather(indices), nil
}

// compareRows orders two rows by keys. Missing values stay last when the
// direction is reversed.
func compareRows(keys []ISeries, a, b int, descending bool) int {
	for _, s := range keys {
		an, bn := s.IsNull(a), s.IsNull(b)
		switch {
		case an && bn:
			continue
		case an:
			return 1
		case bn:
			return -1
		}
		c := s.Compare(a, b)
		if descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DataFrame[%dx%d]\n", df.Len(), df.Width())
	for _, name := range df.order {
		fmt.Fprintf(&sb, "  %s: %s\n", name, df.columns[name].DataType())
	}
	return sb.String()
}

// Release releases all underlying Arrow memory
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}
