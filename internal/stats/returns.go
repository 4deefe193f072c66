// Package stats computes log returns and the regression statistics used to
// estimate market beta.
package stats

import (
	"fmt"
	"math"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
)

// DefaultReturnColumn names the column LogReturnsColumn adds by default.
const DefaultReturnColumn = "log_return"

// LogReturns returns r[i] = ln(p[i+1]) - ln(p[i]). The result has one value
// fewer than prices. Every price must be positive and finite.
func LogReturns(prices []float64) ([]float64, error) {
	for i, p := range prices {
		if err := checkPrice("LogReturns", "", i, p); err != nil {
			return nil, err
		}
	}
	if len(prices) < 2 {
		return []float64{}, nil
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i]) - math.Log(prices[i-1])
	}
	return returns, nil
}

func checkPrice(op, column string, row int, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return errors.NewInvalidPriceError(op, column, row, fmt.Sprintf("price %v is not finite", p))
	}
	if p <= 0 {
		return errors.NewInvalidPriceError(op, column, row, fmt.Sprintf("price %v is not positive", p))
	}
	return nil
}

// Reconstruct rebuilds a price path from a start price and log returns:
// p[0] = p0 and p[i] = p0 * exp(r[0] + ... + r[i-1]).
func Reconstruct(p0 float64, returns []float64) []float64 {
	prices := make([]float64, len(returns)+1)
	prices[0] = p0
	sum := 0.0
	for i, r := range returns {
		sum += r
		prices[i+1] = p0 * math.Exp(sum)
	}
	return prices
}

// LogReturnsColumn adds a float64 column of log returns of priceColumn. The
// first row has no return and is dropped. A missing price is an
// InvalidPrice error.
func LogReturnsColumn(df *dataframe.DataFrame, priceColumn, output string) (*dataframe.DataFrame, error) {
	if output == "" {
		output = DefaultReturnColumn
	}
	return LogReturnsColumns(df, []string{priceColumn}, []string{output})
}

// LogReturnsColumns is LogReturnsColumn over several price columns at once;
// outputs[i] names the returns of priceColumns[i]. The first row is dropped
// once for all of them.
func LogReturnsColumns(df *dataframe.DataFrame, priceColumns, outputs []string) (*dataframe.DataFrame, error) {
	const op = "LogReturnsColumn"
	if len(priceColumns) == 0 || len(priceColumns) != len(outputs) {
		return nil, errors.NewInvalidInputError(op,
			fmt.Sprintf("need one output per price column, got %d columns and %d outputs", len(priceColumns), len(outputs)))
	}
	if err := validation.ValidateNumericColumns(df, op, priceColumns...); err != nil {
		return nil, err
	}

	all := make([][]float64, len(priceColumns))
	for c, name := range priceColumns {
		col, _ := df.Column(name)
		prices := make([]float64, col.Len())
		for i := range prices {
			p, ok := series.Float64At(col, i)
			if !ok {
				return nil, errors.NewInvalidPriceError(op, name, i, "price is missing")
			}
			if err := checkPrice(op, name, i, p); err != nil {
				return nil, err
			}
			prices[i] = p
		}
		returns, err := LogReturns(prices)
		if err != nil {
			return nil, err
		}
		all[c] = returns
	}

	result := df.Slice(min(1, df.Len()), df.Len())
	for c, output := range outputs {
		next, err := withOwned(result, series.New(output, all[c], nil))
		result.Release()
		if err != nil {
			return nil, err
		}
		result = next
	}
	return result, nil
}

func withOwned(df *dataframe.DataFrame, col dataframe.ISeries) (*dataframe.DataFrame, error) {
	result, err := df.WithColumn(col)
	if err != nil {
		col.Release()
		return nil, err
	}
	return result, nil
}
