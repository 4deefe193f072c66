package normalize

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
)

// DateOptions configures Dates.
type DateOptions struct {
	Column string
	// Output names the int64 key column; empty replaces Column in place.
	Output  string
	Layouts []string
	// Policy applies to missing and unparseable values (default DropRow).
	Policy   Policy
	Sentinel int64
}

// Dates parses Column into YYYYMMDD keys. String columns are parsed with
// the configured layouts; int64 columns are read as their decimal digits,
// so CSV-inferred 20240102 values normalize like "20240102".
func Dates(df *dataframe.DataFrame, opts DateOptions) (*dataframe.DataFrame, Report, error) {
	const op = "NormalizeDates"
	report := Report{Column: opts.Column}

	if err := validation.ValidateColumns(df, op, opts.Column); err != nil {
		return nil, report, err
	}
	col, _ := df.Column(opts.Column)
	text, err := dateText(op, col)
	if err != nil {
		return nil, report, err
	}

	policy := opts.Policy.or(DropRow)
	n := col.Len()
	keys := make([]int64, n)
	valid := make([]bool, n)
	keep := make([]int, 0, n)

	for row := 0; row < n; row++ {
		report.Seen++
		raw, present := text(row)
		if present {
			if key, err := ParseDate(raw, opts.Layouts); err == nil {
				keys[row], valid[row] = key, true
				keep = append(keep, row)
				continue
			}
		}
		if policy == Abort {
			return nil, report, errors.NewUnparseableDateError(op, opts.Column, row, raw)
		}
		report.record(policy, row, raw)
		switch policy {
		case MarkMissing:
			keep = append(keep, row)
		case UseSentinel:
			keys[row], valid[row] = opts.Sentinel, true
			keep = append(keep, row)
		}
	}

	output := opts.Output
	if output == "" {
		output = opts.Column
	}
	result, err := withColumnKeeping(df, series.NewNullable(output, keys, valid, nil), keep)
	if err != nil {
		return nil, report, err
	}
	return result, report, nil
}

func dateText(op string, col dataframe.ISeries) (func(int) (string, bool), error) {
	switch typed := col.(type) {
	case *series.Series[string]:
		return typed.Get, nil
	case *series.Series[int64]:
		return func(i int) (string, bool) {
			v, ok := typed.Get(i)
			if !ok {
				return "", false
			}
			return strconv.FormatInt(v, 10), true
		}, nil
	default:
		return nil, errors.NewUnsupportedTypeError(op, col.Name(), col.DataType().String())
	}
}

// PositiveFinite is the default validity predicate for rate and price data.
func PositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ValueOptions configures Values.
type ValueOptions struct {
	Column string
	// Policy applies to missing and invalid values (default MarkMissing).
	Policy   Policy
	Sentinel float64
	// Valid reports whether a present value is usable (default PositiveFinite).
	Valid func(float64) bool
}

// Values applies a validity predicate to a numeric column. The column is
// rewritten as float64; missing inputs count as invalid.
func Values(df *dataframe.DataFrame, opts ValueOptions) (*dataframe.DataFrame, Report, error) {
	const op = "NormalizeValues"
	report := Report{Column: opts.Column}

	if err := validation.ValidateNumericColumns(df, op, opts.Column); err != nil {
		return nil, report, err
	}
	col, _ := df.Column(opts.Column)
	isValid := opts.Valid
	if isValid == nil {
		isValid = PositiveFinite
	}

	policy := opts.Policy.or(MarkMissing)
	n := col.Len()
	values := make([]float64, n)
	valid := make([]bool, n)
	keep := make([]int, 0, n)

	for row := 0; row < n; row++ {
		report.Seen++
		v, present := series.Float64At(col, row)
		if present && isValid(v) {
			values[row], valid[row] = v, true
			keep = append(keep, row)
			continue
		}
		shown := ""
		if present {
			shown = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if policy == Abort {
			return nil, report, &errors.DataFrameError{
				Kind:    errors.KindInvalidInput,
				Op:      op,
				Column:  opts.Column,
				Row:     row + 1,
				Message: fmt.Sprintf("value %q fails validation", shown),
			}
		}
		report.record(policy, row, shown)
		switch policy {
		case MarkMissing:
			keep = append(keep, row)
		case UseSentinel:
			values[row], valid[row] = opts.Sentinel, true
			keep = append(keep, row)
		}
	}

	result, err := withColumnKeeping(df, series.NewNullable(opts.Column, values, valid, nil), keep)
	if err != nil {
		return nil, report, err
	}
	return result, report, nil
}

// withColumnKeeping adds col to df and keeps only the given rows.
func withColumnKeeping(df *dataframe.DataFrame, col dataframe.ISeries, keep []int) (*dataframe.DataFrame, error) {
	withCol, err := df.WithColumn(col)
	if err != nil {
		col.Release()
		return nil, err
	}
	if len(keep) == withCol.Len() {
		return withCol, nil
	}
	defer withCol.Release()
	return withCol.Gather(keep), nil
}

// DeriveMonth adds an int64 month-of-year column (1-12) computed from a
// YYYYMMDD key column. Missing keys give missing months.
func DeriveMonth(df *dataframe.DataFrame, keyColumn, output string) (*dataframe.DataFrame, error) {
	return derive(df, "DeriveMonth", keyColumn, output, func(key int64) int64 { return key / 100 % 100 })
}

// DeriveYear adds an int64 year column computed from a YYYYMMDD key column.
func DeriveYear(df *dataframe.DataFrame, keyColumn, output string) (*dataframe.DataFrame, error) {
	return derive(df, "DeriveYear", keyColumn, output, func(key int64) int64 { return key / 10000 })
}

func derive(df *dataframe.DataFrame, op, keyColumn, output string, fn func(int64) int64) (*dataframe.DataFrame, error) {
	if err := validation.ValidateColumns(df, op, keyColumn); err != nil {
		return nil, err
	}
	if output == "" {
		return nil, errors.NewInvalidInputError(op, "output column name is empty")
	}
	col, _ := df.Column(keyColumn)
	keys, ok := col.(*series.Series[int64])
	if !ok {
		return nil, errors.NewUnsupportedTypeError(op, keyColumn, col.DataType().String())
	}

	values := make([]int64, keys.Len())
	valid := make([]bool, keys.Len())
	for i := range values {
		if key, ok := keys.Get(i); ok {
			values[i], valid[i] = fn(key), true
		}
	}
	derived := series.NewNullable(output, values, valid, nil)
	result, err := df.WithColumn(derived)
	if err != nil {
		derived.Release()
		return nil, err
	}
	return result, nil
}
