// Package source reads named tabular datasets from remote URLs or local
// files, retrying transient network failures and falling back to a bundled
// local copy when the remote stays unavailable.
package source

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	fwio "github.com/paveg/finwrangle/internal/io"
	"github.com/paveg/finwrangle/internal/validation"
)

// Format names the codec used to decode a source.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// CSVSettings tune the CSV codec for one source.
type CSVSettings struct {
	Delimiter   string   `yaml:"delimiter"`
	NoHeader    bool     `yaml:"no_header"`
	ColumnNames []string `yaml:"column_names"`
	Comment     string   `yaml:"comment"`
	NullValues  []string `yaml:"null_values"`
}

// Descriptor identifies a dataset and how to decode it.
type Descriptor struct {
	Name         string      `yaml:"name" validate:"required"`
	URL          string      `yaml:"url" validate:"required_without=Path,omitempty,url"`
	Path         string      `yaml:"path" validate:"required_without=URL"`
	FallbackPath string      `yaml:"fallback_path"`
	Format       Format      `yaml:"format" validate:"omitempty,oneof=csv xlsx json jsonl parquet"`
	Sheet        string      `yaml:"sheet"`
	CSV          CSVSettings `yaml:"csv"`
}

// Validate checks required fields and codec settings.
func (d Descriptor) Validate() error {
	if err := validation.ValidateStruct("Descriptor", d); err != nil {
		return err
	}
	for field, v := range map[string]string{"csv.delimiter": d.CSV.Delimiter, "csv.comment": d.CSV.Comment} {
		if utf8.RuneCountInString(v) > 1 {
			return errors.NewInvalidInputError("Descriptor", fmt.Sprintf("%s must be a single character, got %q", field, v))
		}
	}
	return nil
}

// ResolvedFormat returns the explicit format, or the one implied by the
// file extension of Path or URL. Unknown extensions read as CSV.
func (d Descriptor) ResolvedFormat() Format {
	if d.Format != "" {
		return d.Format
	}
	location := d.Path
	if location == "" {
		location = d.URL
		if u, err := url.Parse(d.URL); err == nil {
			location = u.Path
		}
	}
	switch strings.ToLower(path.Ext(location)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".parquet":
		return FormatParquet
	default:
		return FormatCSV
	}
}

// CSVOptions converts the descriptor's CSV settings into codec options.
func (d Descriptor) CSVOptions() fwio.CSVOptions {
	opts := fwio.DefaultCSVOptions()
	if r, _ := utf8.DecodeRuneInString(d.CSV.Delimiter); d.CSV.Delimiter != "" {
		opts.Delimiter = r
	}
	if r, _ := utf8.DecodeRuneInString(d.CSV.Comment); d.CSV.Comment != "" {
		opts.Comment = r
	}
	opts.Header = !d.CSV.NoHeader
	opts.ColumnNames = d.CSV.ColumnNames
	if len(d.CSV.NullValues) > 0 {
		opts.NullValues = d.CSV.NullValues
	}
	return opts
}

// Decode parses r with the descriptor's codec.
func (d Descriptor) Decode(r io.Reader, mem memory.Allocator) (*dataframe.DataFrame, error) {
	var reader fwio.DataReader
	switch d.ResolvedFormat() {
	case FormatXLSX:
		opts := fwio.DefaultXLSXOptions()
		opts.Sheet = d.Sheet
		opts.ColumnNames = d.CSV.ColumnNames
		if len(d.CSV.NullValues) > 0 {
			opts.NullValues = d.CSV.NullValues
		}
		reader = fwio.NewXLSXReader(r, opts, mem)
	case FormatJSON, FormatJSONL:
		opts := fwio.DefaultJSONOptions()
		if d.ResolvedFormat() == FormatJSONL {
			opts.Format = fwio.JSONLines
		}
		if len(d.CSV.NullValues) > 0 {
			opts.NullValues = d.CSV.NullValues
		}
		reader = fwio.NewJSONReader(r, opts, mem)
	case FormatParquet:
		reader = fwio.NewParquetReader(r, fwio.DefaultParquetOptions(), mem)
	default:
		reader = fwio.NewCSVReader(r, d.CSVOptions(), mem)
	}
	return reader.Read()
}
