package finwrangle_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/finwrangle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNormalizeJoin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rates.csv"),
		[]byte("DATE,DGS10\n2024-01-02,3.95\n2024-01-03,.\n2024-01-04,3.99\n"), 0o600))

	ctx := context.Background()
	rates, err := finwrangle.Read(ctx, finwrangle.Descriptor{
		Name: "dgs10",
		Path: filepath.Join(dir, "rates.csv"),
		CSV:  finwrangle.CSVSettings{NullValues: []string{"."}},
	})
	require.NoError(t, err)
	defer rates.Release()

	keyed, rep, err := finwrangle.NormalizeDates(rates, finwrangle.DateOptions{Column: "DATE"})
	require.NoError(t, err)
	defer keyed.Release()
	assert.Equal(t, 0, rep.Invalid())

	checked, rep, err := finwrangle.NormalizeValues(keyed, finwrangle.ValueOptions{Column: "DGS10", Policy: finwrangle.DropRow})
	require.NoError(t, err)
	defer checked.Release()
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 2, checked.Len())

	prices, err := finwrangle.NewDataFrame(
		finwrangle.NewSeries("DATE", []int64{20240102, 20240104, 20240105}),
		finwrangle.NewSeries("close", []float64{10, 11, 12}),
	)
	require.NoError(t, err)
	defer prices.Release()

	joined, report, err := finwrangle.JoinAll([]*finwrangle.DataFrame{checked, prices},
		finwrangle.JoinAllOptions{Keys: []string{"DATE"}, Policy: finwrangle.TruncateToCommon})
	require.NoError(t, err)
	defer joined.Release()
	assert.Equal(t, []string{"DATE", "DGS10", "close"}, joined.Columns())
	assert.Equal(t, 2, report.RowsOut)
	assert.Equal(t, 1, report.RowsDropped())
}

func TestNewDataFrameRejectsBadShapes(t *testing.T) {
	a := finwrangle.NewSeries("a", []int64{1, 2})
	defer a.Release()
	b := finwrangle.NewSeries("a", []int64{3, 4})
	defer b.Release()
	_, err := finwrangle.NewDataFrame(a, b)
	assert.Error(t, err)

	c := finwrangle.NewNullableSeries("c", []float64{1, 0, 3}, []bool{true, false, true})
	defer c.Release()
	_, err = finwrangle.NewDataFrame(a, c)
	assert.Error(t, err)
}

func TestRunRecipe(t *testing.T) {
	recipe, err := finwrangle.LoadRecipe(filepath.Join("internal", "pipeline", "testdata", "monthly.yaml"))
	require.NoError(t, err)

	result, err := finwrangle.RunRecipe(context.Background(), recipe)
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, []string{"month", "acme_return"}, result.Table.Columns())
	require.NotNil(t, result.Regression)
	assert.NotEmpty(t, result.RunID)
}

func Example() {
	df, err := finwrangle.NewDataFrame(
		finwrangle.NewSeries("date", []int64{20240102, 20240103, 20240104}),
		finwrangle.NewSeries("close", []float64{100, 110, 121}),
	)
	if err != nil {
		panic(err)
	}
	defer df.Release()

	returns, err := finwrangle.LogReturns(df, []string{"close"}, []string{"r"})
	if err != nil {
		panic(err)
	}
	defer returns.Release()

	r, _ := returns.Column("r")
	fmt.Println(returns.Columns(), returns.Len())
	first, _ := finwrangle.Float64At(r, 0)
	fmt.Printf("%.4f\n", first)
	// Output:
	// [date close r] 2
	// 0.0953
}
