// Package report renders tables for people (aligned text, markdown) and for
// other programs (CSV, JSON, YAML).
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	fwio "github.com/paveg/finwrangle/internal/io"
	"github.com/paveg/finwrangle/internal/series"
	"gopkg.in/yaml.v3"
)

// Format selects a renderer.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.NewInvalidInputError("ParseFormat", fmt.Sprintf("unknown report format %q", s))
	}
}

// Options configures Render.
type Options struct {
	Format Format
	// MaxRows limits the rendered rows; 0 renders all.
	MaxRows int
	// Precision fixes the decimals of float columns in table and markdown
	// output; 0 prints the shortest exact form.
	Precision int
	// NullToken is printed for missing values in text formats.
	NullToken string
}

// Render writes df to w.
func Render(w io.Writer, df *dataframe.DataFrame, opts Options) error {
	view := df
	if opts.MaxRows > 0 && opts.MaxRows < df.Len() {
		view = df.Head(opts.MaxRows)
		defer view.Release()
	}

	switch opts.Format {
	case FormatTable, "":
		return renderTable(w, view, df.Len(), opts)
	case FormatMarkdown:
		newTableWriter(w, view, opts).RenderMarkdown()
		return nil
	case FormatCSV:
		csvOpts := fwio.DefaultCSVOptions()
		csvOpts.NullToken = opts.NullToken
		return fwio.NewCSVWriter(w, csvOpts).Write(view)
	case FormatJSON:
		return fwio.NewJSONWriter(w, fwio.JSONOptions{Format: fwio.JSONArray, Indent: "  "}).Write(view)
	case FormatYAML:
		return renderYAML(w, view)
	default:
		return errors.NewInvalidInputError("Render", fmt.Sprintf("unknown report format %q", opts.Format))
	}
}

func renderTable(w io.Writer, view *dataframe.DataFrame, total int, opts Options) error {
	if view.Len() == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	newTableWriter(w, view, opts).Render()

	var err error
	if view.Len() < total {
		_, err = fmt.Fprintf(w, "(%d of %d rows)\n", view.Len(), total)
	} else {
		_, err = fmt.Fprintf(w, "(%d rows)\n", total)
	}
	return err
}

func newTableWriter(w io.Writer, df *dataframe.DataFrame, opts Options) table.Writer {
	names := df.Columns()
	cols := make([]dataframe.ISeries, len(names))
	header := make(table.Row, len(names))
	for i, name := range names {
		cols[i], _ = df.Column(name)
		header[i] = name
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(header)
	for row := 0; row < df.Len(); row++ {
		r := make(table.Row, len(cols))
		for i, col := range cols {
			r[i] = formatCell(col, row, opts)
		}
		t.AppendRow(r)
	}
	return t
}

func formatCell(col dataframe.ISeries, row int, opts Options) string {
	if col.IsNull(row) {
		return opts.NullToken
	}
	if f, ok := col.(*series.Series[float64]); ok && opts.Precision > 0 {
		return strconv.FormatFloat(f.Value(row), 'f', opts.Precision, 64)
	}
	return col.GetAsString(row)
}

// renderYAML writes a sequence of mappings, keeping column order.
func renderYAML(w io.Writer, df *dataframe.DataFrame) error {
	names := df.Columns()
	root := &yaml.Node{Kind: yaml.SequenceNode}
	for row := 0; row < df.Len(); row++ {
		record := &yaml.Node{Kind: yaml.MappingNode}
		for _, name := range names {
			col, _ := df.Column(name)
			record.Content = append(record.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
				scalarNode(col, row))
		}
		root.Content = append(root.Content, record)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return errors.NewInternalError("RenderYAML", err)
	}
	return enc.Close()
}

func scalarNode(col dataframe.ISeries, row int) *yaml.Node {
	if col.IsNull(row) {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	tag := "!!str"
	switch col.(type) {
	case *series.Series[int64]:
		tag = "!!int"
	case *series.Series[float64]:
		tag = "!!float"
	case *series.Series[bool]:
		tag = "!!bool"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: col.GetAsString(row)}
}

// WriteFile writes df to path, creating or truncating it. The extension
// picks the encoding: .xlsx, .parquet, .json and .jsonl are honored and
// anything else is written as CSV with nullToken for missing values.
func WriteFile(path string, df *dataframe.DataFrame, nullToken string) (err error) {
	const op = "WriteFile"
	f, err := os.Create(path)
	if err != nil {
		return errors.NewSourceUnavailableError(op, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.NewSourceUnavailableError(op, path, cerr)
		}
	}()

	var w fwio.DataWriter
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		w = fwio.NewXLSXWriter(f, fwio.DefaultXLSXOptions())
	case ".parquet":
		w = fwio.NewParquetWriter(f, fwio.DefaultParquetOptions())
	case ".json":
		w = fwio.NewJSONWriter(f, fwio.JSONOptions{Format: fwio.JSONArray, Indent: "  "})
	case ".jsonl":
		w = fwio.NewJSONWriter(f, fwio.JSONOptions{Format: fwio.JSONLines})
	default:
		opts := fwio.DefaultCSVOptions()
		opts.NullToken = nullToken
		w = fwio.NewCSVWriter(f, opts)
	}
	return w.Write(df)
}
