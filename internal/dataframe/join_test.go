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

func dailyFrame(name string, start int64, n int, value float64) *DataFrame {
	mem := memory.NewGoAllocator()
	dates := make([]int64, n)
	values := make([]float64, n)
	for i := range n {
		dates[i] = start + int64(i)
		values[i] = value + float64(i)
	}
	return New(series.New("date", dates, mem), series.New(name, values, mem))
}

func createJoinTestData(t *testing.T) (*DataFrame, *DataFrame) {
	t.Helper()
	mem := memory.NewGoAllocator()

	left := New(
		series.New("date", []int64{1, 2, 3, 4}, mem),
		series.New("close", []float64{10, 20, 30, 40}, mem),
	)
	right := New(
		series.New("date", []int64{2, 4, 5}, mem),
		series.New("rate", []float64{0.2, 0.4, 0.5}, mem),
	)
	return left, right
}

func TestDataFrameInnerJoin(t *testing.T) {
	leftDF, rightDF := createJoinTestData(t)
	defer leftDF.Release()
	defer rightDF.Release()

	result, err := leftDF.Join(rightDF, &JoinOptions{LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, []string{"date", "close", "rate"}, result.Columns())
	assert.Equal(t, []string{"2", "4"}, stringsOf(t, result, "date"))
	assert.Equal(t, []string{"20", "40"}, stringsOf(t, result, "close"))
	assert.Equal(t, []string{"0.2", "0.4"}, stringsOf(t, result, "rate"))
	assert.LessOrEqual(t, result.Len(), min(leftDF.Len(), rightDF.Len()))
}

func TestDataFrameJoinTypes(t *testing.T) {
	leftDF, rightDF := createJoinTestData(t)
	defer leftDF.Release()
	defer rightDF.Release()

	tests := []struct {
		name  string
		typ   JoinType
		dates []string
		close []string
		rate  []string
	}{
		{
			name:  "left",
			typ:   LeftJoin,
			dates: []string{"1", "2", "3", "4"},
			close: []string{"10", "20", "30", "40"},
			rate:  []string{"<nil>", "0.2", "<nil>", "0.4"},
		},
		{
			name:  "right",
			typ:   RightJoin,
			dates: []string{"2", "4", "5"},
			close: []string{"20", "40", "<nil>"},
			rate:  []string{"0.2", "0.4", "0.5"},
		},
		{
			name:  "full outer",
			typ:   FullOuterJoin,
			dates: []string{"1", "2", "3", "4", "5"},
			close: []string{"10", "20", "30", "40", "<nil>"},
			rate:  []string{"<nil>", "0.2", "<nil>", "0.4", "0.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := leftDF.Join(rightDF, &JoinOptions{Type: tt.typ, LeftKey: "date", RightKey: "date"})
			require.NoError(t, err)
			defer result.Release()

			assert.Equal(t, tt.dates, stringsOf(t, result, "date"))
			assert.Equal(t, tt.close, stringsOf(t, result, "close"))
			assert.Equal(t, tt.rate, stringsOf(t, result, "rate"))
		})
	}
}

func TestJoinCardinalityBounds(t *testing.T) {
	left := dailyFrame("a", 1, 254, 100)
	defer left.Release()
	right := dailyFrame("b", 8, 247, 200)
	defer right.Release()

	inner, err := left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer inner.Release()
	assert.Equal(t, 247, inner.Len(), "a 254-row and a 247-row table with a shared range join to 247 rows")

	outer, err := left.Join(right, &JoinOptions{Type: FullOuterJoin, LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer outer.Release()
	assert.Equal(t, 254, outer.Len(), "outer join has one row per key in the union")
}

func TestJoinDuplicateKeysCrossProduct(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := New(
		series.New("ticker", []string{"A", "A", "B"}, mem),
		series.New("lot", []int64{1, 2, 3}, mem),
	)
	defer left.Release()
	right := New(
		series.New("ticker", []string{"A", "A", "C"}, mem),
		series.New("trade", []int64{10, 20, 30}, mem),
	)
	defer right.Release()

	result, err := left.Join(right, &JoinOptions{LeftKey: "ticker", RightKey: "ticker"})
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, 4, result.Len())
	assert.Equal(t, []string{"1", "1", "2", "2"}, stringsOf(t, result, "lot"))
	assert.Equal(t, []string{"10", "20", "10", "20"}, stringsOf(t, result, "trade"))
}

func TestJoinMissingKeysNeverMatch(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := New(
		series.NewNullable("date", []int64{1, 0}, []bool{true, false}, mem),
		series.New("x", []int64{1, 2}, mem),
	)
	defer left.Release()
	right := New(
		series.NewNullable("date", []int64{0, 1}, []bool{false, true}, mem),
		series.New("y", []int64{3, 4}, mem),
	)
	defer right.Release()

	inner, err := left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer inner.Release()
	assert.Equal(t, []string{"1"}, stringsOf(t, inner, "x"))

	outer, err := left.Join(right, &JoinOptions{Type: FullOuterJoin, LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer outer.Release()
	assert.Equal(t, []string{"1", "<nil>", "<nil>"}, stringsOf(t, outer, "date"))
	assert.Equal(t, []string{"1", "2", "<nil>"}, stringsOf(t, outer, "x"))
	assert.Equal(t, []string{"4", "<nil>", "3"}, stringsOf(t, outer, "y"))
}

func TestJoinMultipleKeysAndSuffix(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := New(
		series.New("ticker", []string{"A", "A", "B"}, mem),
		series.New("date", []int64{1, 2, 1}, mem),
		series.New("close", []float64{1.5, 2.5, 3.5}, mem),
	)
	defer left.Release()
	right := New(
		series.New("sym", []string{"B", "A"}, mem),
		series.New("day", []int64{1, 2}, mem),
		series.New("close", []float64{30, 20}, mem),
	)
	defer right.Release()

	result, err := left.Join(right, &JoinOptions{
		LeftKeys:  []string{"ticker", "date"},
		RightKeys: []string{"sym", "day"},
	})
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, []string{"ticker", "date", "close", "close_right"}, result.Columns())
	assert.Equal(t, []string{"A", "B"}, stringsOf(t, result, "ticker"))
	assert.Equal(t, []string{"20", "30"}, stringsOf(t, result, "close_right"))

	custom, err := left.Join(right, &JoinOptions{
		LeftKeys:  []string{"ticker", "date"},
		RightKeys: []string{"sym", "day"},
		Suffix:    "_fx",
	})
	require.NoError(t, err)
	defer custom.Release()
	assert.True(t, custom.HasColumn("close_fx"))
}

func TestJoinNoOverlap(t *testing.T) {
	left := dailyFrame("a", 1, 3, 1)
	defer left.Release()
	right := dailyFrame("b", 100, 3, 1)
	defer right.Release()

	result, err := left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "date"})
	require.NoError(t, err)
	defer result.Release()
	assert.Equal(t, 0, result.Len())
	assert.Equal(t, []string{"date", "a", "b"}, result.Columns(), "empty result keeps the schema")

	_, err = left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "date", RequireOverlap: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrJoinKeyMismatch)

	overlap, err := KeyOverlap(left, right, []string{"date"}, []string{"date"})
	require.NoError(t, err)
	assert.Equal(t, 0, overlap)
}

func TestKeyOverlapCountsDistinctKeys(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := New(series.New("k", []string{"a", "a", "b", "c"}, mem))
	defer left.Release()
	right := New(series.New("k", []string{"a", "b", "b", "d"}, mem))
	defer right.Release()

	overlap, err := KeyOverlap(left, right, []string{"k"}, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, 2, overlap)
}

func TestJoinValidation(t *testing.T) {
	mem := memory.NewGoAllocator()
	left := New(series.New("date", []int64{1}, mem))
	defer left.Release()
	right := New(series.New("date", []string{"1"}, mem))
	defer right.Release()

	_, err := left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "date"})
	require.ErrorIs(t, err, dferrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "different types")

	_, err = left.Join(right, &JoinOptions{LeftKey: "date", RightKey: "day"})
	require.ErrorIs(t, err, dferrors.ErrColumnNotFound)

	_, err = left.Join(right, &JoinOptions{LeftKeys: []string{"date"}, RightKeys: []string{}})
	require.ErrorIs(t, err, dferrors.ErrInvalidInput)

	_, err = left.Join(right, nil)
	require.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestJoinAll(t *testing.T) {
	a := dailyFrame("a", 1, 10, 0)
	defer a.Release()
	b := dailyFrame("b", 3, 10, 0)
	defer b.Release()
	c := dailyFrame("c", 5, 3, 0)
	defer c.Release()

	t.Run("truncate to common", func(t *testing.T) {
		result, report, err := JoinAll([]*DataFrame{a, b, c}, JoinAllOptions{Keys: []string{"date"}})
		require.NoError(t, err)
		defer result.Release()

		assert.Equal(t, []string{"date", "a", "b", "c"}, result.Columns())
		assert.Equal(t, []string{"5", "6", "7"}, stringsOf(t, result, "date"))
		assert.Equal(t, 3, report.RowsOut)
		require.Len(t, report.Inputs, 3)
		assert.Equal(t, InputReport{Index: 0, RowsIn: 10, RowsDropped: 7}, report.Inputs[0])
		assert.Equal(t, InputReport{Index: 1, RowsIn: 10, RowsDropped: 7}, report.Inputs[1])
		assert.Equal(t, InputReport{Index: 2, RowsIn: 3, RowsDropped: 0}, report.Inputs[2])
		assert.Equal(t, 14, report.RowsDropped())
	})

	t.Run("keep all", func(t *testing.T) {
		result, report, err := JoinAll([]*DataFrame{a, b, c}, JoinAllOptions{Keys: []string{"date"}, Policy: KeepAll})
		require.NoError(t, err)
		defer result.Release()

		assert.Equal(t, 12, result.Len())
		assert.Equal(t, 0, report.RowsDropped())
	})

	t.Run("suffixes", func(t *testing.T) {
		x := dailyFrame("close", 1, 2, 0)
		defer x.Release()
		y := dailyFrame("close", 1, 2, 0)
		defer y.Release()

		result, _, err := JoinAll([]*DataFrame{x, y, x}, JoinAllOptions{
			Keys:     []string{"date"},
			Suffixes: []string{"", "_fx"},
		})
		require.NoError(t, err)
		defer result.Release()
		assert.Equal(t, []string{"date", "close", "close_fx", "close_2"}, result.Columns())
	})

	t.Run("require overlap checks the running result", func(t *testing.T) {
		x := dailyFrame("x", 1, 2, 0)
		defer x.Release()
		y := dailyFrame("y", 1, 1, 0)
		defer y.Release()
		z := dailyFrame("z", 2, 1, 0)
		defer z.Release()

		tests := []struct {
			name    string
			policy  TruncationPolicy
			wantErr bool
		}{
			{name: "truncate to common", policy: TruncateToCommon, wantErr: true},
			{name: "keep all", policy: KeepAll},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, _, err := JoinAll([]*DataFrame{x, y, z}, JoinAllOptions{
					Keys:           []string{"date"},
					Policy:         tt.policy,
					RequireOverlap: true,
					Names:          []string{"x", "y"},
				})
				if tt.wantErr {
					require.ErrorIs(t, err, dferrors.ErrJoinKeyMismatch)
					assert.Contains(t, err.Error(), "[x+y.date] and [input2.date]")
					return
				}
				require.NoError(t, err)
				defer result.Release()
				assert.Equal(t, 2, result.Len())
			})
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, _, err := JoinAll(nil, JoinAllOptions{Keys: []string{"date"}})
		require.ErrorIs(t, err, dferrors.ErrInvalidInput)
		_, _, err = JoinAll([]*DataFrame{a, b}, JoinAllOptions{Keys: []string{"day"}})
		require.ErrorIs(t, err, dferrors.ErrColumnNotFound)
	})
}

func TestParseJoinType(t *testing.T) {
	for in, want := range map[string]JoinType{"": InnerJoin, "left": LeftJoin, "right": RightJoin, "outer": FullOuterJoin} {
		got, err := ParseJoinType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseJoinType("cross")
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	assert.Equal(t, "outer", FullOuterJoin.String())
}
