package io

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
)

const (
	// Boolean string constants
	trueStr  = "true"
	falseStr = "false"
)

type columnType int

const (
	typeString columnType = iota
	typeBool
	typeInt
	typeFloat
)

// table is a decoded source before typing: names plus row-major cells.
// A nil cell is missing regardless of null tokens.
type table struct {
	headers []string
	rows    [][]*string
}

// resolveHeaders applies explicit column names and checks the result.
func resolveHeaders(op string, header, explicit []string, width int) ([]string, error) {
	headers := header
	switch {
	case len(explicit) > 0:
		if header != nil && len(explicit) != len(header) {
			return nil, errors.NewParseError(op,
				fmt.Sprintf("%d column names given for %d columns", len(explicit), len(header)), nil)
		}
		headers = explicit
	case header == nil:
		headers = make([]string, width)
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, errors.NewParseError(op, fmt.Sprintf("column %d has an empty header", i), nil)
		}
		if seen[name] {
			return nil, errors.NewParseError(op, fmt.Sprintf("duplicate header %q", name), nil)
		}
		seen[name] = true
		headers[i] = name
	}
	return headers, nil
}

// toDataFrame infers a type per column and builds the series.
func (t *table) toDataFrame(nullValues []string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	nulls := make(map[string]bool, len(nullValues))
	for _, v := range nullValues {
		nulls[v] = true
	}

	cols := make([]dataframe.ISeries, 0, len(t.headers))
	for c, name := range t.headers {
		data := make([]string, len(t.rows))
		valid := make([]bool, len(t.rows))
		for r, row := range t.rows {
			if c >= len(row) || row[c] == nil {
				continue
			}
			value := strings.TrimSpace(*row[c])
			if nulls[value] {
				continue
			}
			data[r], valid[r] = value, true
		}
		cols = append(cols, buildSeries(name, data, valid, mem))
	}
	return dataframe.NewChecked(cols...)
}

// inferColumnType determines the most specific type that fits every
// present value. Columns with no present value are strings.
func inferColumnType(data []string, valid []bool) columnType {
	canBeInt := true
	canBeFloat := true
	canBeBool := true
	hasValue := false

	for i, value := range data {
		if !valid[i] {
			continue
		}
		hasValue = true

		if canBeBool {
			lower := strings.ToLower(value)
			if lower != trueStr && lower != falseStr {
				canBeBool = false
			}
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
	}

	switch {
	case !hasValue:
		return typeString
	case canBeBool:
		return typeBool
	case canBeInt:
		return typeInt
	case canBeFloat:
		return typeFloat
	default:
		return typeString
	}
}

func buildSeries(name string, data []string, valid []bool, mem memory.Allocator) dataframe.ISeries {
	switch inferColumnType(data, valid) {
	case typeBool:
		values := make([]bool, len(data))
		for i, v := range data {
			values[i] = valid[i] && strings.EqualFold(v, trueStr)
		}
		return series.NewNullable(name, values, valid, mem)
	case typeInt:
		values := make([]int64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseInt(v, 10, 64)
			}
		}
		return series.NewNullable(name, values, valid, mem)
	case typeFloat:
		values := make([]float64, len(data))
		for i, v := range data {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(v, 64)
			}
		}
		return series.NewNullable(name, values, valid, mem)
	default:
		return series.NewNullable(name, data, valid, mem)
	}
}

// formatValue renders a present value for text output.
func formatValue(s dataframe.ISeries, index int, nullToken string) string {
	if s.IsNull(index) {
		return nullToken
	}
	return s.GetAsString(index)
}
