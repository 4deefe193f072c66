// Package io provides I/O operations for reading and writing DataFrame data.
//
// This package includes readers and writers for the tabular formats that
// financial data arrives in, with automatic type inference and explicit
// missing-value handling. Every reader goes through the same inference path:
// configured null tokens become missing values and each column is typed as
// the narrowest of bool, int64, float64 or string that fits its values.
//
// Key components:
//   - DataReader/DataWriter interfaces for pluggable I/O backends
//   - CSVReader/CSVWriter for delimited text
//   - XLSXReader/XLSXWriter for spreadsheets
//   - JSONReader/JSONWriter for record arrays and JSON Lines
//   - ParquetReader/ParquetWriter for columnar files
//
// Memory management: All I/O operations integrate with Apache Arrow's
// memory management system and require proper cleanup with defer patterns.
package io

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
)

// DataReader defines the interface for reading data from various sources
type DataReader interface {
	// Read reads data from the source and returns a DataFrame
	Read() (*dataframe.DataFrame, error)
}

// DataWriter defines the interface for writing data to various destinations
type DataWriter interface {
	// Write writes the DataFrame to the destination
	Write(df *dataframe.DataFrame) error
}

// DefaultNullValues are the tokens read as missing values unless configured
// otherwise.
func DefaultNullValues() []string {
	return []string{"", "NA", "N/A", "NaN", "null"}
}

// CSVOptions contains configuration options for CSV operations
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// Comment is the comment character (default: 0 = disabled)
	Comment rune
	// Header indicates whether the first row contains headers
	Header bool
	// SkipInitialSpace indicates whether to skip initial whitespace
	SkipInitialSpace bool
	// ColumnNames overrides the header, or names the columns of a headerless file
	ColumnNames []string
	// NullValues are read as missing values (default: DefaultNullValues)
	NullValues []string
	// NullToken is written for missing values
	NullToken string
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:  ',',
		Header:     true,
		NullValues: DefaultNullValues(),
	}
}

// CSVReader reads CSV data and converts it to DataFrames
type CSVReader struct {
	reader  io.Reader
	options CSVOptions
	mem     memory.Allocator
}

// NewCSVReader creates a new CSV reader with the specified options
func NewCSVReader(reader io.Reader, options CSVOptions, mem memory.Allocator) *CSVReader {
	return &CSVReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// CSVWriter writes DataFrames to CSV format
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions) *CSVWriter {
	return &CSVWriter{
		writer:  writer,
		options: options,
	}
}

// XLSXOptions contains configuration options for spreadsheet operations
type XLSXOptions struct {
	// Sheet to read or write (default: first sheet / "Sheet1")
	Sheet string
	// Header indicates whether the first row contains headers
	Header bool
	// ColumnNames overrides the header, or names the columns of a headerless sheet
	ColumnNames []string
	// NullValues are read as missing values (default: DefaultNullValues)
	NullValues []string
}

// DefaultXLSXOptions returns default spreadsheet options
func DefaultXLSXOptions() XLSXOptions {
	return XLSXOptions{
		Header:     true,
		NullValues: DefaultNullValues(),
	}
}

// XLSXReader reads one worksheet of an XLSX workbook
type XLSXReader struct {
	reader  io.Reader
	options XLSXOptions
	mem     memory.Allocator
}

// NewXLSXReader creates a new spreadsheet reader
func NewXLSXReader(reader io.Reader, options XLSXOptions, mem memory.Allocator) *XLSXReader {
	return &XLSXReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// XLSXWriter writes DataFrames to a single-sheet XLSX workbook
type XLSXWriter struct {
	writer  io.Writer
	options XLSXOptions
}

// NewXLSXWriter creates a new spreadsheet writer
func NewXLSXWriter(writer io.Writer, options XLSXOptions) *XLSXWriter {
	return &XLSXWriter{
		writer:  writer,
		options: options,
	}
}

// JSONFormat selects between a single array of objects and JSON Lines.
type JSONFormat int

const (
	JSONArray JSONFormat = iota
	JSONLines
)

// JSONOptions contains configuration options for JSON operations
type JSONOptions struct {
	Format JSONFormat
	// NullValues are string values read as missing (default: DefaultNullValues)
	NullValues []string
	// Indent pretty-prints array output when non-empty
	Indent string
}

// DefaultJSONOptions returns default JSON options
func DefaultJSONOptions() JSONOptions {
	return JSONOptions{
		Format:     JSONArray,
		NullValues: DefaultNullValues(),
	}
}

// JSONReader reads JSON records and converts them to DataFrames
type JSONReader struct {
	reader  io.Reader
	options JSONOptions
	mem     memory.Allocator
}

// NewJSONReader creates a new JSON reader with the specified options
func NewJSONReader(reader io.Reader, options JSONOptions, mem memory.Allocator) *JSONReader {
	return &JSONReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// JSONWriter writes DataFrames as JSON records
type JSONWriter struct {
	writer  io.Writer
	options JSONOptions
}

// NewJSONWriter creates a new JSON writer with the specified options
func NewJSONWriter(writer io.Writer, options JSONOptions) *JSONWriter {
	return &JSONWriter{
		writer:  writer,
		options: options,
	}
}

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// Compression type for Parquet files
	Compression string
	// BatchSize for reading/writing operations
	BatchSize int
}

// DefaultBatchSize is the default batch size for I/O operations
const DefaultBatchSize = 1000

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

// ParquetReader reads Parquet data and converts it to DataFrames
type ParquetReader struct {
	reader  io.Reader
	options ParquetOptions
	mem     memory.Allocator
}

// NewParquetReader creates a new Parquet reader with the specified options
func NewParquetReader(reader io.Reader, options ParquetOptions, mem memory.Allocator) *ParquetReader {
	return &ParquetReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// ParquetWriter writes DataFrames to Parquet format
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions) *ParquetWriter {
	return &ParquetWriter{
		writer:  writer,
		options: options,
	}
}
