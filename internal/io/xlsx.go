package io

import (
	"fmt"
	"strings"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Read reads one worksheet and returns a DataFrame. Trailing empty cells
// are missing values; fully empty rows are skipped.
func (r *XLSXReader) Read() (*dataframe.DataFrame, error) {
	f, err := excelize.OpenReader(r.reader)
	if err != nil {
		return nil, errors.NewParseError("ReadXLSX", "opening workbook", err)
	}
	defer func() { _ = f.Close() }()

	sheet := r.options.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.NewParseError("ReadXLSX", "workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.NewParseError("ReadXLSX", fmt.Sprintf("reading sheet %q", sheet), err)
	}
	records = dropEmptyRows(records)
	if len(records) == 0 {
		return dataframe.New(), nil
	}

	var header []string
	dataRows := records
	width := 0
	for _, row := range records {
		width = max(width, len(row))
	}
	if r.options.Header {
		header = records[0]
		dataRows = records[1:]
		width = len(header)
	}

	headers, err := resolveHeaders("ReadXLSX", header, r.options.ColumnNames, width)
	if err != nil {
		return nil, err
	}

	t := &table{headers: headers, rows: make([][]*string, len(dataRows))}
	for i, row := range dataRows {
		if len(row) > len(headers) {
			return nil, errors.NewParseError("ReadXLSX",
				fmt.Sprintf("row %d has %d cells for %d columns", i+1, len(row), len(headers)), nil)
		}
		cells := make([]*string, len(row))
		for j := range row {
			cells[j] = &row[j]
		}
		t.rows[i] = cells
	}

	nullValues := r.options.NullValues
	if nullValues == nil {
		nullValues = DefaultNullValues()
	}
	return t.toDataFrame(nullValues, r.mem)
}

func dropEmptyRows(records [][]string) [][]string {
	out := records[:0]
	for _, row := range records {
		if strings.TrimSpace(strings.Join(row, "")) != "" {
			out = append(out, row)
		}
	}
	return out
}

// Write writes the DataFrame to a workbook with a header row. Numbers and
// booleans are stored as typed cells; missing values are left empty.
func (w *XLSXWriter) Write(df *dataframe.DataFrame) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := defaultSheet
	if w.options.Sheet != "" && w.options.Sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, w.options.Sheet); err != nil {
			return fmt.Errorf("naming sheet: %w", err)
		}
		sheet = w.options.Sheet
	}

	columns := df.Columns()
	header := make([]interface{}, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}

	cols := make([]dataframe.ISeries, len(columns))
	for j, name := range columns {
		cols[j], _ = df.Column(name)
	}
	for i := 0; i < df.Len(); i++ {
		row := make([]interface{}, len(cols))
		for j, col := range cols {
			if v, ok := series.ValueAt(col, i); ok {
				row[j] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	return f.Write(w.writer)
}
