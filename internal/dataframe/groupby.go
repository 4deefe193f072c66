package dataframe

import (
	"fmt"
	"math"
	"slices"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
)

// AggFunc is a reduction applied to the values of one group.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMean
	AggCount // Present values
	AggMin
	AggMax
	AggSize // Rows, including missing values
)

var aggNames = map[AggFunc]string{
	AggSum:   "sum",
	AggMean:  "mean",
	AggCount: "count",
	AggMin:   "min",
	AggMax:   "max",
	AggSize:  "size",
}

func (f AggFunc) String() string {
	if name, ok := aggNames[f]; ok {
		return name
	}
	return fmt.Sprintf("AggFunc(%d)", int(f))
}

// ParseAggFunc maps a configuration value to an AggFunc.
func ParseAggFunc(s string) (AggFunc, error) {
	for f, name := range aggNames {
		if name == s {
			return f, nil
		}
	}
	return AggSum, errors.NewInvalidInputError("ParseAggFunc", fmt.Sprintf("unknown aggregation %q", s))
}

// AggSpec names one aggregation column of a GroupBy result.
type AggSpec struct {
	Column string
	Func   AggFunc
	Alias  string // Output name; "<func>_<column>" when empty
}

// Sum aggregates column by summing present values.
func Sum(column string) AggSpec { return AggSpec{Column: column, Func: AggSum} }

// Mean aggregates column by averaging present values.
func Mean(column string) AggSpec { return AggSpec{Column: column, Func: AggMean} }

// Count aggregates column by counting present values.
func Count(column string) AggSpec { return AggSpec{Column: column, Func: AggCount} }

// Min aggregates column by its smallest present value.
func Min(column string) AggSpec { return AggSpec{Column: column, Func: AggMin} }

// Max aggregates column by its largest present value.
func Max(column string) AggSpec { return AggSpec{Column: column, Func: AggMax} }

// Size counts the rows of each group.
func Size() AggSpec { return AggSpec{Func: AggSize} }

// As sets the output column name.
func (s AggSpec) As(alias string) AggSpec {
	s.Alias = alias
	return s
}

// OutputName returns the result column name of the aggregation.
func (s AggSpec) OutputName() string {
	switch {
	case s.Alias != "":
		return s.Alias
	case s.Func == AggSize:
		return "size"
	default:
		return fmt.Sprintf("%s_%s", s.Func, s.Column)
	}
}

// GroupBy represents a grouped DataFrame for aggregation operations
type GroupBy struct {
	df          *DataFrame
	groupByCols []string
	groups      [][]int // row indices per group, groups sorted by key
	err         error
}

// GroupBy partitions rows by the distinct values of columns. Missing values
// form their own group. Groups are ordered by key ascending, missing last.
func (df *DataFrame) GroupBy(columns ...string) *GroupBy {
	gb := &GroupBy{df: df, groupByCols: columns}
	if len(columns) == 0 {
		gb.err = errors.NewInvalidInputError("GroupBy", "no group columns given")
		return gb
	}
	if err := validation.ValidateColumns(df, "GroupBy", columns...); err != nil {
		gb.err = err
		return gb
	}

	keys := columnsOf(df, columns)
	gb.groups = newKeyIndex(keys, true).groups
	slices.SortStableFunc(gb.groups, func(a, b []int) int {
		return compareRows(keys, a[0], b[0], false)
	})
	return gb
}

// Groups returns the number of distinct groups.
func (gb *GroupBy) Groups() int {
	return len(gb.groups)
}

// Agg reduces every group with specs. The result has one row per group: the
// group columns with their original types, then one column per spec.
func (gb *GroupBy) Agg(specs ...AggSpec) (*DataFrame, error) {
	if gb.err != nil {
		return nil, gb.err
	}
	if len(specs) == 0 {
		return nil, errors.NewInvalidInputError("Agg", "no aggregations given")
	}
	if err := gb.validateSpecs(specs); err != nil {
		return nil, err
	}

	mem := memory.NewGoAllocator()
	firstRows := make([]int, len(gb.groups))
	for i, rows := range gb.groups {
		firstRows[i] = rows[0]
	}

	cols := make([]ISeries, 0, len(gb.groupByCols)+len(specs))
	for _, name := range gb.groupByCols {
		cols = append(cols, gb.df.columns[name].Gather(firstRows, mem))
	}
	for _, spec := range specs {
		cols = append(cols, gb.reduce(spec, mem))
	}
	result, err := NewChecked(cols...)
	if err != nil {
		for _, c := range cols {
			c.Release()
		}
		return nil, err
	}
	return result, nil
}

func (gb *GroupBy) validateSpecs(specs []AggSpec) error {
	for _, spec := range specs {
		switch spec.Func {
		case AggSize:
		case AggCount:
			if err := validation.ValidateColumns(gb.df, "Agg", spec.Column); err != nil {
				return err
			}
		case AggSum, AggMean, AggMin, AggMax:
			if err := validation.ValidateNumericColumns(gb.df, "Agg", spec.Column); err != nil {
				return err
			}
		default:
			return errors.NewInvalidInputError("Agg", fmt.Sprintf("unknown aggregation %v", spec.Func))
		}
	}
	return nil
}

func (gb *GroupBy) reduce(spec AggSpec, mem memory.Allocator) ISeries {
	name := spec.OutputName()

	switch spec.Func {
	case AggSize:
		sizes := make([]int64, len(gb.groups))
		for i, rows := range gb.groups {
			sizes[i] = int64(len(rows))
		}
		return series.New(name, sizes, mem)
	case AggCount:
		col := gb.df.columns[spec.Column]
		counts := make([]int64, len(gb.groups))
		for i, rows := range gb.groups {
			for _, r := range rows {
				if !col.IsNull(r) {
					counts[i]++
				}
			}
		}
		return series.New(name, counts, mem)
	case AggMean:
		return gb.mean(name, gb.df.columns[spec.Column], mem)
	}

	switch col := gb.df.columns[spec.Column].(type) {
	case *series.Series[int64]:
		return reduceGroups(name, col, gb.groups, spec.Func, mem)
	case *series.Series[float64]:
		if spec.Func == AggSum {
			return gb.sum(name, col, mem)
		}
		return reduceGroups(name, col, gb.groups, spec.Func, mem)
	default:
		// validateSpecs admits numeric columns only.
		panic(fmt.Sprintf("reduce: non-numeric column %s", spec.Column))
	}
}

// sum totals float groups with compensated summation so the result does
// not depend on row order.
func (gb *GroupBy) sum(name string, col *series.Series[float64], mem memory.Allocator) ISeries {
	values := make([]float64, len(gb.groups))
	valid := make([]bool, len(gb.groups))
	for i, rows := range gb.groups {
		var acc compensatedSum
		for _, r := range rows {
			if v, ok := col.Get(r); ok {
				acc.add(v)
				valid[i] = true
			}
		}
		values[i] = acc.value()
	}
	return series.NewNullable(name, values, valid, mem)
}

func (gb *GroupBy) mean(name string, col ISeries, mem memory.Allocator) ISeries {
	values := make([]float64, len(gb.groups))
	valid := make([]bool, len(gb.groups))
	for i, rows := range gb.groups {
		var acc compensatedSum
		n := 0
		for _, r := range rows {
			if v, ok := series.Float64At(col, r); ok {
				acc.add(v)
				n++
			}
		}
		if n > 0 {
			values[i], valid[i] = acc.value()/float64(n), true
		}
	}
	return series.NewNullable(name, values, valid, mem)
}

// compensatedSum is a Neumaier running sum. It carries the low-order bits
// lost by each addition in c.
type compensatedSum struct {
	sum, c float64
}

func (s *compensatedSum) add(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.c += (s.sum - t) + v
	} else {
		s.c += (v - t) + s.sum
	}
	s.sum = t
}

func (s *compensatedSum) value() float64 {
	if math.IsInf(s.sum, 0) {
		return s.sum
	}
	return s.sum + s.c
}

// reduceGroups applies sum, min or max to every group. Float sums go
// through GroupBy.sum instead. A group with no
// present values reduces to a missing value.
func reduceGroups[T int64 | float64](
	name string, col *series.Series[T], groups [][]int, fn AggFunc, mem memory.Allocator,
) ISeries {
	values := make([]T, len(groups))
	valid := make([]bool, len(groups))
	for i, rows := range groups {
		for _, r := range rows {
			v, ok := col.Get(r)
			if !ok {
				continue
			}
			if !valid[i] {
				values[i], valid[i] = v, true
				continue
			}
			switch fn {
			case AggSum:
				values[i] += v
			case AggMin:
				if series.CompareValues(v, values[i]) < 0 {
					values[i] = v
				}
			case AggMax:
				if series.CompareValues(v, values[i]) > 0 {
					values[i] = v
				}
			}
		}
	}
	return series.NewNullable(name, values, valid, mem)
}

// OrderBy selects the sort key of an Aggregate result.
type OrderBy int

const (
	ByKey   OrderBy = iota // Group columns
	ByValue                // Aggregated column
)

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	GroupBy    []string
	Value      string // Aggregated column; ignored by AggSize
	Func       AggFunc
	Alias      string
	OrderBy    OrderBy
	Descending bool
	Limit      int // Keep the first Limit rows after sorting; 0 keeps all
}

// Aggregate groups, reduces one value column and orders the result. Ordering
// by value descending with a limit yields the top contributors.
func Aggregate(df *DataFrame, opts AggregateOptions) (*DataFrame, error) {
	spec := AggSpec{Column: opts.Value, Func: opts.Func, Alias: opts.Alias}
	grouped, err := df.GroupBy(opts.GroupBy...).Agg(spec)
	if err != nil {
		return nil, err
	}
	defer grouped.Release()

	by := opts.GroupBy
	if opts.OrderBy == ByValue {
		by = []string{spec.OutputName()}
	}
	sorted, err := grouped.Sort(SortOptions{By: by, Descending: opts.Descending})
	if err != nil {
		return nil, err
	}
	if opts.Limit <= 0 || opts.Limit >= sorted.Len() {
		return sorted, nil
	}
	defer sorted.Release()
	return sorted.Head(opts.Limit), nil
}
