package io

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
)

// Read reads JSON records and returns a DataFrame. Columns are the union of
// record keys in sorted order; a key absent from a record is a missing value.
func (r *JSONReader) Read() (*dataframe.DataFrame, error) {
	var records []map[string]any
	var err error
	if r.options.Format == JSONLines {
		records, err = r.readJSONLines()
	} else {
		records, err = r.readJSONArray()
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return dataframe.New(), nil
	}
	return r.recordsToDataFrame(records)
}

// readJSONArray reads JSON array format.
func (r *JSONReader) readJSONArray() ([]map[string]any, error) {
	decoder := json.NewDecoder(r.reader)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, errors.NewParseError("ReadJSON", "decoding JSON array", err)
	}
	return records, nil
}

// readJSONLines reads JSON Lines format.
func (r *JSONReader) readJSONLines() ([]map[string]any, error) {
	scanner := bufio.NewScanner(r.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []map[string]any
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		decoder := json.NewDecoder(bytes.NewReader(text))
		decoder.UseNumber()
		var record map[string]any
		if err := decoder.Decode(&record); err != nil {
			return nil, errors.NewParseError("ReadJSON", fmt.Sprintf("decoding line %d", line), err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewParseError("ReadJSON", "scanning JSON lines", err)
	}
	return records, nil
}

// recordsToDataFrame renders every scalar as text and reuses the shared
// inference, so "1.5" and 1.5 type the same way.
func (r *JSONReader) recordsToDataFrame(records []map[string]any) (*dataframe.DataFrame, error) {
	columnSet := make(map[string]bool)
	for _, record := range records {
		for key := range record {
			columnSet[key] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	headers, err := resolveHeaders("ReadJSON", append([]string(nil), columns...), nil, len(columns))
	if err != nil {
		return nil, err
	}

	t := &table{headers: headers, rows: make([][]*string, len(records))}
	for i, record := range records {
		cells := make([]*string, len(columns))
		for j, col := range columns {
			text, ok, err := scalarText(record[col])
			if err != nil {
				return nil, errors.NewParseError("ReadJSON",
					fmt.Sprintf("record %d field %q", i+1, col), err)
			}
			if ok {
				cells[j] = &text
			}
		}
		t.rows[i] = cells
	}

	nullValues := r.options.NullValues
	if nullValues == nil {
		nullValues = DefaultNullValues()
	}
	return t.toDataFrame(nullValues, r.mem)
}

func scalarText(v any) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case json.Number:
		return x.String(), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	default:
		return "", false, fmt.Errorf("nested value of type %T", v)
	}
}

// Write writes the DataFrame as JSON records, preserving column order.
// Missing values and non-finite floats are written as null.
func (w *JSONWriter) Write(df *dataframe.DataFrame) error {
	bw := bufio.NewWriter(w.writer)
	columns := df.Columns()
	cols := make([]dataframe.ISeries, len(columns))
	for j, name := range columns {
		cols[j], _ = df.Column(name)
	}

	lines := w.options.Format == JSONLines
	if !lines {
		bw.WriteString("[")
	}
	for i := 0; i < df.Len(); i++ {
		record, err := encodeRecord(columns, cols, i)
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
		switch {
		case lines:
			bw.Write(record)
			bw.WriteString("\n")
		default:
			if i > 0 {
				bw.WriteString(",")
			}
			if w.options.Indent != "" {
				bw.WriteString("\n" + w.options.Indent)
			}
			bw.Write(record)
		}
	}
	if !lines {
		if w.options.Indent != "" && df.Len() > 0 {
			bw.WriteString("\n")
		}
		bw.WriteString("]\n")
	}
	return bw.Flush()
}

func encodeRecord(columns []string, cols []dataframe.ISeries, row int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for j, name := range columns {
		if j > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v, ok := series.ValueAt(cols[j], row)
		if f, isFloat := v.(float64); isFloat && (math.IsNaN(f) || math.IsInf(f, 0)) {
			ok = false
		}
		if !ok {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
