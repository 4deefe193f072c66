package io

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
)

// Read reads CSV data and returns a DataFrame. Rows whose field count
// differs from the header are a ParseError.
func (r *CSVReader) Read() (*dataframe.DataFrame, error) {
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	if csvReader.Comma == 0 {
		csvReader.Comma = ','
	}
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace
	csvReader.FieldsPerRecord = 0

	records, err := csvReader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if stderrors.As(err, &parseErr) {
			return nil, errors.NewParseError("ReadCSV", fmt.Sprintf("malformed CSV at line %d", parseErr.Line), err)
		}
		return nil, errors.NewParseError("ReadCSV", "reading CSV", err)
	}

	// Handle empty CSV
	if len(records) == 0 {
		return dataframe.New(), nil
	}

	var header []string
	dataRows := records
	if r.options.Header {
		header = records[0]
		dataRows = records[1:]
	}

	headers, err := resolveHeaders("ReadCSV", header, r.options.ColumnNames, len(records[0]))
	if err != nil {
		return nil, err
	}
	if len(headers) != len(records[0]) {
		return nil, errors.NewParseError("ReadCSV",
			fmt.Sprintf("%d column names given for %d columns", len(headers), len(records[0])), nil)
	}

	t := &table{headers: headers, rows: make([][]*string, len(dataRows))}
	for i, row := range dataRows {
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

// Write writes the DataFrame to CSV format
func (w *CSVWriter) Write(df *dataframe.DataFrame) error {
	csvWriter := csv.NewWriter(w.writer)
	if w.options.Delimiter != 0 {
		csvWriter.Comma = w.options.Delimiter
	}

	columns := df.Columns()
	if w.options.Header {
		if err := csvWriter.Write(columns); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	cols := make([]dataframe.ISeries, len(columns))
	for j, name := range columns {
		cols[j], _ = df.Column(name)
	}

	row := make([]string, len(cols))
	for i := 0; i < df.Len(); i++ {
		for j, col := range cols {
			row[j] = formatValue(col, i, w.options.NullToken)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
