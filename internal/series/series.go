// Package series provides data structures for column operations
package series

import (
	"fmt"
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/constraints"
)

// Element is the set of Go types a Series can hold.
type Element interface {
	string | int64 | float64 | bool
}

// Interface is a type-erased column. Missing values are Arrow nulls.
type Interface interface {
	Name() string
	Len() int
	DataType() arrow.DataType
	IsNull(index int) bool
	NullN() int
	String() string
	// GetAsString formats the value at index; missing values format as "".
	GetAsString(index int) string
	// Gather builds a new column whose i-th value is the value at indices[i].
	// A negative index yields a missing value.
	Gather(indices []int, mem memory.Allocator) Interface
	// Rename returns a column sharing this column's data under a new name.
	Rename(name string) Interface
	// Compare orders the values at i and j; missing values sort last.
	Compare(i, j int) int
	// Array returns the underlying Arrow array (retains a reference)
	Array() arrow.Array
	Release()
}

// Series represents a typed data column with Apache Arrow backend
type Series[T Element] struct {
	name  string
	array arrow.Array
}

// New creates a new Series from a slice of values
func New[T Element](name string, values []T, mem memory.Allocator) *Series[T] {
	return NewNullable(name, values, nil, mem)
}

// NewNullable creates a Series where valid[i] == false marks values[i] as
// missing. A nil valid slice marks every value present.
func NewNullable[T Element](name string, values []T, valid []bool, mem memory.Allocator) *Series[T] {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if valid != nil && len(valid) != len(values) {
		panic(fmt.Sprintf("series %s: %d validity flags for %d values", name, len(valid), len(values)))
	}

	var arr arrow.Array

	switch v := any(values).(type) {
	case []string:
		builder := array.NewStringBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []int64:
		builder := array.NewInt64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []float64:
		builder := array.NewFloat64Builder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	case []bool:
		builder := array.NewBooleanBuilder(mem)
		defer builder.Release()
		builder.AppendValues(v, valid)
		arr = builder.NewArray()
	}

	return &Series[T]{
		name:  name,
		array: arr,
	}
}

// FromArray wraps an existing Arrow array, retaining a reference to it.
func FromArray(name string, arr arrow.Array) (Interface, error) {
	switch arr.(type) {
	case *array.String:
		arr.Retain()
		return &Series[string]{name: name, array: arr}, nil
	case *array.Int64:
		arr.Retain()
		return &Series[int64]{name: name, array: arr}, nil
	case *array.Float64:
		arr.Retain()
		return &Series[float64]{name: name, array: arr}, nil
	case *array.Boolean:
		arr.Retain()
		return &Series[bool]{name: name, array: arr}, nil
	default:
		return nil, fmt.Errorf("unsupported array type: %s", arr.DataType())
	}
}

// Name returns the column name
func (s *Series[T]) Name() string {
	return s.name
}

// Len returns the length of the series
func (s *Series[T]) Len() int {
	return s.array.Len()
}

// NullN returns the number of missing values
func (s *Series[T]) NullN() int {
	return s.array.NullN()
}

// Values returns the data as a Go slice. Missing positions hold the zero value.
func (s *Series[T]) Values() []T {
	result := make([]T, s.array.Len())
	for i := range result {
		result[i] = s.Value(i)
	}
	return result
}

// Valid returns the validity flag of every position.
func (s *Series[T]) Valid() []bool {
	result := make([]bool, s.array.Len())
	for i := range result {
		result[i] = s.array.IsValid(i)
	}
	return result
}

// Value returns the value at the given index
func (s *Series[T]) Value(index int) T {
	var result T
	if index < 0 || index >= s.array.Len() || s.array.IsNull(index) {
		return result
	}

	switch arr := s.array.(type) {
	case *array.String:
		*any(&result).(*string) = arr.Value(index)
	case *array.Int64:
		*any(&result).(*int64) = arr.Value(index)
	case *array.Float64:
		*any(&result).(*float64) = arr.Value(index)
	case *array.Boolean:
		*any(&result).(*bool) = arr.Value(index)
	}

	return result
}

// Get returns the value at index and whether it is present.
func (s *Series[T]) Get(index int) (T, bool) {
	if index < 0 || index >= s.array.Len() || s.array.IsNull(index) {
		var zero T
		return zero, false
	}
	return s.Value(index), true
}

// DataType returns the Arrow data type
func (s *Series[T]) DataType() arrow.DataType {
	return s.array.DataType()
}

// IsNull checks if the value at index is null
func (s *Series[T]) IsNull(index int) bool {
	return s.array.IsNull(index)
}

// GetAsString formats the value at index. Floats use the shortest
// representation that round-trips.
func (s *Series[T]) GetAsString(index int) string {
	v, ok := s.Get(index)
	if !ok {
		return ""
	}
	switch x := any(v).(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// Gather builds a new series from the given row indices; -1 yields a null.
func (s *Series[T]) Gather(indices []int, mem memory.Allocator) Interface {
	values := make([]T, len(indices))
	valid := make([]bool, len(indices))
	for i, idx := range indices {
		if v, ok := s.Get(idx); ok {
			values[i] = v
			valid[i] = true
		}
	}
	return NewNullable(s.name, values, valid, mem)
}

// Rename returns a series sharing the same Arrow data under a new name.
func (s *Series[T]) Rename(name string) Interface {
	s.array.Retain()
	return &Series[T]{name: name, array: s.array}
}

// Compare orders the values at i and j. Missing values sort after every
// present value; NaN sorts after every number.
func (s *Series[T]) Compare(i, j int) int {
	a, aok := s.Get(i)
	b, bok := s.Get(j)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	return compareElements(a, b)
}

// CompareValues orders two present elements of the same type.
func CompareValues[T Element](a, b T) int {
	return compareElements(a, b)
}

func compareElements[T Element](a, b T) int {
	switch x := any(a).(type) {
	case string:
		return compareOrdered(x, any(b).(string))
	case int64:
		return compareOrdered(x, any(b).(int64))
	case float64:
		y := any(b).(float64)
		switch {
		case math.IsNaN(x) && math.IsNaN(y):
			return 0
		case math.IsNaN(x):
			return 1
		case math.IsNaN(y):
			return -1
		}
		return compareOrdered(x, y)
	case bool:
		y := any(b).(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String returns a string representation of the series
func (s *Series[T]) String() string {
	return fmt.Sprintf("Series[%s]: %s (len=%d, nulls=%d)",
		s.array.DataType(),
		s.name,
		s.Len(),
		s.NullN())
}

// Array returns the underlying Arrow array (retains a reference)
func (s *Series[T]) Array() arrow.Array {
	if s.array != nil {
		s.array.Retain()
		return s.array
	}
	return nil
}

// Release releases the underlying Arrow memory
func (s *Series[T]) Release() {
	if s.array != nil {
		s.array.Release()
	}
}

// Float64At returns a numeric value at index as float64. The second result is
// false for missing values and non-numeric columns.
func Float64At(s Interface, index int) (float64, bool) {
	switch typed := s.(type) {
	case *Series[float64]:
		return typed.Get(index)
	case *Series[int64]:
		v, ok := typed.Get(index)
		return float64(v), ok
	default:
		return 0, false
	}
}

// IsNumeric reports whether the series holds int64 or float64 values.
func IsNumeric(s Interface) bool {
	switch s.DataType().ID() {
	case arrow.INT64, arrow.FLOAT64:
		return true
	default:
		return false
	}
}

// Float64s extracts a numeric series as float64 values plus validity.
func Float64s(s Interface) ([]float64, []bool, error) {
	if !IsNumeric(s) {
		return nil, nil, fmt.Errorf("column %s has non-numeric type %s", s.Name(), s.DataType())
	}
	values := make([]float64, s.Len())
	valid := make([]bool, s.Len())
	for i := range values {
		values[i], valid[i] = Float64At(s, i)
	}
	return values, valid, nil
}

// ValueAt returns the value at index as an untyped Go value. The second
// result is false for missing values.
func ValueAt(s Interface, index int) (any, bool) {
	switch typed := s.(type) {
	case *Series[string]:
		return typed.Get(index)
	case *Series[int64]:
		return typed.Get(index)
	case *Series[float64]:
		return typed.Get(index)
	case *Series[bool]:
		return typed.Get(index)
	default:
		return nil, false
	}
}

// EqualAt reports whether a[i] and b[j] hold the same present value. Columns
// of different types never compare equal.
func EqualAt(a Interface, i int, b Interface, j int) bool {
	switch x := a.(type) {
	case *Series[string]:
		return equalAt(x, i, b, j)
	case *Series[int64]:
		return equalAt(x, i, b, j)
	case *Series[float64]:
		return equalAt(x, i, b, j)
	case *Series[bool]:
		return equalAt(x, i, b, j)
	default:
		return false
	}
}

func equalAt[T Element](a *Series[T], i int, b Interface, j int) bool {
	y, ok := b.(*Series[T])
	if !ok {
		return false
	}
	av, aok := a.Get(i)
	bv, bok := y.Get(j)
	return aok && bok && compareElements(av, bv) == 0
}
