//nolint:testpackage // requires internal access to unexported types and functions
package dataframe

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	dferrors "github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPriceTestData(t *testing.T) *DataFrame {
	t.Helper()
	mem := memory.NewGoAllocator()

	return New(
		series.New("date", []int64{20240103, 20240101, 20240102, 20240104}, mem),
		series.New("ticker", []string{"ACME", "ACME", "BOLT", "BOLT"}, mem),
		series.NewNullable("close", []float64{101.5, 100, 0, 99.25}, []bool{true, true, false, true}, mem),
	)
}

func stringsOf(t *testing.T, df *DataFrame, name string) []string {
	t.Helper()
	col, ok := df.Column(name)
	require.True(t, ok, "column %s", name)
	out := make([]string, col.Len())
	for i := range out {
		if col.IsNull(i) {
			out[i] = "<nil>"
		} else {
			out[i] = col.GetAsString(i)
		}
	}
	return out
}

func TestNewChecked(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("valid", func(t *testing.T) {
		df, err := NewChecked(
			series.New("a", []int64{1, 2}, mem),
			series.New("b", []string{"x", "y"}, mem),
		)
		require.NoError(t, err)
		defer df.Release()
		assert.Equal(t, 2, df.Len())
		assert.Equal(t, 2, df.Width())
	})

	t.Run("duplicate names", func(t *testing.T) {
		a := series.New("a", []int64{1}, mem)
		defer a.Release()
		b := series.New("a", []int64{2}, mem)
		defer b.Release()

		_, err := NewChecked(a, b)
		assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	})

	t.Run("unequal lengths", func(t *testing.T) {
		a := series.New("a", []int64{1, 2}, mem)
		defer a.Release()
		b := series.New("b", []int64{2}, mem)
		defer b.Release()

		_, err := NewChecked(a, b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected length 2, got 1")
	})
}

func TestDataFrameEmpty(t *testing.T) {
	df := New()
	defer df.Release()

	assert.Equal(t, 0, df.Len())
	assert.Equal(t, 0, df.Width())
	assert.Equal(t, []string{}, df.Columns())
}

func TestDataFrameSelect(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	selected, err := df.Select("close", "date")
	require.NoError(t, err)
	defer selected.Release()

	assert.Equal(t, []string{"close", "date"}, selected.Columns())
	assert.Equal(t, 4, selected.Len())

	_, err = df.Select("date", "volume")
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
	assert.Contains(t, err.Error(), "volume")
}

func TestDataFrameSelectOutlivesSource(t *testing.T) {
	df := createPriceTestData(t)
	selected, err := df.Select("ticker")
	require.NoError(t, err)
	df.Release()
	defer selected.Release()

	assert.Equal(t, []string{"ACME", "ACME", "BOLT", "BOLT"}, stringsOf(t, selected, "ticker"))
}

func TestDataFrameDropAndRename(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	dropped := df.Drop("ticker", "unknown")
	defer dropped.Release()
	assert.Equal(t, []string{"date", "close"}, dropped.Columns())
	assert.Equal(t, []string{"date", "ticker", "close"}, df.Columns(), "input must not change")

	renamed, err := df.Rename(map[string]string{"close": "price"})
	require.NoError(t, err)
	defer renamed.Release()
	assert.Equal(t, []string{"date", "ticker", "price"}, renamed.Columns())

	_, err = df.Rename(map[string]string{"close": "date"})
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)

	_, err = df.Rename(map[string]string{"volume": "v"})
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestDataFrameWithColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := createPriceTestData(t)
	defer df.Release()

	added, err := df.WithColumn(series.New("volume", []int64{10, 20, 30, 40}, mem))
	require.NoError(t, err)
	defer added.Release()
	assert.Equal(t, []string{"date", "ticker", "close", "volume"}, added.Columns())

	replaced, err := df.WithColumn(series.New("ticker", []string{"a", "b", "c", "d"}, mem))
	require.NoError(t, err)
	defer replaced.Release()
	assert.Equal(t, []string{"date", "ticker", "close"}, replaced.Columns())
	assert.Equal(t, []string{"a", "b", "c", "d"}, stringsOf(t, replaced, "ticker"))

	short := series.New("short", []int64{1}, mem)
	defer short.Release()
	_, err = df.WithColumn(short)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestDataFrameSliceAndHead(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	sliced := df.Slice(1, 3)
	defer sliced.Release()
	assert.Equal(t, []string{"20240101", "20240102"}, stringsOf(t, sliced, "date"))
	assert.Equal(t, []string{"100", "<nil>"}, stringsOf(t, sliced, "close"))

	head := df.Head(10)
	defer head.Release()
	assert.Equal(t, 4, head.Len())

	empty := df.Slice(3, 1)
	defer empty.Release()
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 3, empty.Width())
}

func TestDataFrameGather(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	gathered := df.Gather([]int{3, -1, 0})
	defer gathered.Release()

	assert.Equal(t, []string{"20240104", "<nil>", "20240103"}, stringsOf(t, gathered, "date"))
	assert.Equal(t, []string{"99.25", "<nil>", "101.5"}, stringsOf(t, gathered, "close"))
}

func TestDataFrameDropNulls(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	clean, err := df.DropNulls("close")
	require.NoError(t, err)
	defer clean.Release()
	assert.Equal(t, 3, clean.Len())
	assert.Equal(t, []string{"20240103", "20240101", "20240104"}, stringsOf(t, clean, "date"))

	all, err := df.DropNulls()
	require.NoError(t, err)
	defer all.Release()
	assert.Equal(t, 3, all.Len())

	_, err = df.DropNulls("volume")
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestDataFrameSort(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	tests := []struct {
		name     string
		opts     SortOptions
		column   string
		expected []string
	}{
		{
			name:     "single key ascending",
			opts:     SortOptions{By: []string{"date"}},
			column:   "date",
			expected: []string{"20240101", "20240102", "20240103", "20240104"},
		},
		{
			name:     "missing values last ascending",
			opts:     SortOptions{By: []string{"close"}},
			column:   "close",
			expected: []string{"99.25", "100", "101.5", "<nil>"},
		},
		{
			name:     "missing values last descending",
			opts:     SortOptions{By: []string{"close"}, Descending: true},
			column:   "close",
			expected: []string{"101.5", "100", "99.25", "<nil>"},
		},
		{
			name:     "composite key",
			opts:     SortOptions{By: []string{"ticker", "date"}},
			column:   "date",
			expected: []string{"20240101", "20240103", "20240102", "20240104"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sorted, err := df.Sort(tt.opts)
			require.NoError(t, err)
			defer sorted.Release()
			assert.Equal(t, tt.expected, stringsOf(t, sorted, tt.column))
		})
	}

	_, err := df.Sort(SortOptions{})
	require.ErrorIs(t, err, dferrors.ErrInvalidInput)
	_, err = df.Sort(SortOptions{By: []string{"volume"}})
	require.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestDataFrameString(t *testing.T) {
	df := createPriceTestData(t)
	defer df.Release()

	out := df.String()
	assert.Contains(t, out, "DataFrame[4x3]")
	assert.Contains(t, out, "close: float64")
}
