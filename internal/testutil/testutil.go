// Package testutil provides common testing utilities shared by the
// finwrangle packages: fixture tables for price and rate data, assertions
// over tables and a logger that writes to the test log.
package testutil

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// defaultRowCount is the default number of rows in test price tables.
	defaultRowCount = 5
)

// TestMemoryContext provides a checked allocator that fails the test when
// Arrow memory is leaked.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts that every allocation has been freed.
func (tmc *TestMemoryContext) Release() {
	tmc.tb.Helper()
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked allocator for tests.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// PriceFrameOption configures test price table creation.
type PriceFrameOption func(*priceFrameConfig)

type priceFrameConfig struct {
	rowCount  int
	ticker    string
	startDate int64
	nullAt    []int
}

// WithRowCount sets the number of rows in the price table.
func WithRowCount(count int) PriceFrameOption {
	return func(cfg *priceFrameConfig) {
		cfg.rowCount = count
	}
}

// WithTicker sets the ticker column value.
func WithTicker(ticker string) PriceFrameOption {
	return func(cfg *priceFrameConfig) {
		cfg.ticker = ticker
	}
}

// WithStartDate sets the first YYYYMMDD date key.
func WithStartDate(date int64) PriceFrameOption {
	return func(cfg *priceFrameConfig) {
		cfg.startDate = date
	}
}

// WithMissingClose marks the close price missing at the given rows. Rows
// past the end of the table are ignored.
func WithMissingClose(rows ...int) PriceFrameOption {
	return func(cfg *priceFrameConfig) {
		cfg.nullAt = append(cfg.nullAt, rows...)
	}
}

// CreatePriceFrame creates a daily price table.
//
// Default table:
// - date (int64): consecutive YYYYMMDD keys from 20240102
// - ticker (string): "ACME"
// - close (float64): [100, 105, 103, 108, 110, ...]
func CreatePriceFrame(allocator memory.Allocator, opts ...PriceFrameOption) *dataframe.DataFrame {
	cfg := &priceFrameConfig{
		rowCount:  defaultRowCount,
		ticker:    "ACME",
		startDate: 20240102,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dates := make([]int64, cfg.rowCount)
	tickers := make([]string, cfg.rowCount)
	closes := make([]float64, cfg.rowCount)
	valid := make([]bool, cfg.rowCount)
	baseCloses := []float64{100, 105, 103, 108, 110, 107, 111, 115}
	for i := range cfg.rowCount {
		dates[i] = cfg.startDate + int64(i)
		tickers[i] = cfg.ticker
		closes[i] = baseCloses[i%len(baseCloses)]
		valid[i] = true
	}
	for _, row := range cfg.nullAt {
		if row >= 0 && row < cfg.rowCount {
			valid[row] = false
		}
	}

	return dataframe.New(
		series.New("date", dates, allocator),
		series.New("ticker", tickers, allocator),
		series.NewNullable("close", closes, valid, allocator),
	)
}

// CreateRateFrame creates a table of "date" keys and "rate" values. A NaN
// rate is stored as a missing value.
func CreateRateFrame(allocator memory.Allocator, dates []int64, rates []float64) *dataframe.DataFrame {
	valid := make([]bool, len(rates))
	for i, r := range rates {
		valid[i] = !math.IsNaN(r)
	}
	return dataframe.New(
		series.New("date", dates, allocator),
		series.NewNullable("rate", rates, valid, allocator),
	)
}

// AssertDataFrameHasColumns verifies that a DataFrame has exactly the
// expected columns in order.
func AssertDataFrameHasColumns(t testing.TB, df *dataframe.DataFrame, expectedColumns []string) {
	t.Helper()

	require.NotNil(t, df, "DataFrame should not be nil")
	assert.Equal(t, expectedColumns, df.Columns(), "columns should match")
}

// AssertDataFrameNotEmpty verifies that a DataFrame is not empty.
func AssertDataFrameNotEmpty(t testing.TB, df *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, df, "DataFrame should not be nil")
	assert.Positive(t, df.Len(), "DataFrame should not be empty")
	assert.Positive(t, df.Width(), "DataFrame should have columns")
}

// ColumnStrings returns the formatted values of a column, "<nil>" for
// missing values.
func ColumnStrings(t testing.TB, df *dataframe.DataFrame, name string) []string {
	t.Helper()

	col, ok := df.Column(name)
	require.True(t, ok, "column %s should exist", name)
	out := make([]string, col.Len())
	for i := range out {
		if col.IsNull(i) {
			out[i] = "<nil>"
			continue
		}
		out[i] = col.GetAsString(i)
	}
	return out
}

// Float64Column returns a float64 column's values and validity.
func Float64Column(t testing.TB, df *dataframe.DataFrame, name string) ([]float64, []bool) {
	t.Helper()

	col, ok := df.Column(name)
	require.True(t, ok, "column %s should exist", name)
	typed, ok := col.(*series.Series[float64])
	require.True(t, ok, "column %s should be float64, got %s", name, col.DataType())
	return typed.Values(), typed.Valid()
}

// Int64Column returns an int64 column's values and validity.
func Int64Column(t testing.TB, df *dataframe.DataFrame, name string) ([]int64, []bool) {
	t.Helper()

	col, ok := df.Column(name)
	require.True(t, ok, "column %s should exist", name)
	typed, ok := col.(*series.Series[int64])
	require.True(t, ok, "column %s should be int64, got %s", name, col.DataType())
	return typed.Values(), typed.Valid()
}
