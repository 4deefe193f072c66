package cli

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// sourceFlags describe how positional source arguments are decoded and
// which date column, if any, is normalized after reading.
type sourceFlags struct {
	inputFormat string
	sheet       string
	fallback    string
	delimiter   string
	comment     string
	noHeader    bool
	columns     []string
	nullValues  []string

	dateColumn string
	dateOutput string
	layouts    []string
	keyPolicy  string
}

func (f *sourceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.inputFormat, "input-format", "", "source format (csv|xlsx|json|jsonl|parquet), from the extension by default")
	fs.StringVar(&f.sheet, "sheet", "", "XLSX sheet, the first sheet by default")
	fs.StringVar(&f.fallback, "fallback", "", "local file used when a URL source stays unavailable")
	fs.StringVar(&f.delimiter, "delimiter", "", "CSV field delimiter")
	fs.StringVar(&f.comment, "comment", "", "CSV comment character")
	fs.BoolVar(&f.noHeader, "no-header", false, "CSV has no header row")
	fs.StringSliceVar(&f.columns, "columns", nil, "column names, overriding or supplying the header")
	fs.StringSliceVar(&f.nullValues, "null-values", nil, "tokens read as missing values")
	fs.StringVar(&f.dateColumn, "date-column", "", "normalize this column into YYYYMMDD keys")
	fs.StringVar(&f.dateOutput, "date-output", "", "write date keys to this column instead of replacing the date column")
	fs.StringSliceVar(&f.layouts, "date-layouts", nil, "Go time layouts tried in order")
	fs.StringVar(&f.keyPolicy, "key-policy", "", "what to do with unparseable dates (drop|missing|sentinel|abort)")
}

// descriptor turns a positional argument into a source descriptor; http and
// https arguments are URLs, anything else a local path.
func (f *sourceFlags) descriptor(location string) source.Descriptor {
	d := source.Descriptor{
		Name:         sourceName(location),
		FallbackPath: f.fallback,
		Format:       source.Format(f.inputFormat),
		Sheet:        f.sheet,
		CSV: source.CSVSettings{
			Delimiter:   f.delimiter,
			NoHeader:    f.noHeader,
			ColumnNames: f.columns,
			Comment:     f.comment,
			NullValues:  f.nullValues,
		},
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		d.URL = location
	} else {
		d.Path = location
	}
	return d
}

func sourceName(location string) string {
	base := path.Base(strings.SplitN(location, "?", 2)[0])
	if name := strings.TrimSuffix(base, path.Ext(base)); name != "" && name != "." && name != "/" {
		return name
	}
	return location
}

// load reads location and normalizes its date column when one is named.
func (f *sourceFlags) load(ctx context.Context, app *App, location string) (*dataframe.DataFrame, error) {
	df, err := app.Reader.Read(ctx, f.descriptor(location))
	if err != nil {
		return nil, err
	}
	if f.dateColumn == "" {
		return df, nil
	}
	defer df.Release()

	policy, err := normalize.ParsePolicy(f.keyPolicy)
	if err != nil {
		return nil, err
	}
	if policy == normalize.PolicyDefault {
		policy, _ = app.Config.KeyPolicy()
	}
	layouts := f.layouts
	if len(layouts) == 0 {
		layouts = app.Config.Normalize.DateLayouts
	}

	out, rep, err := normalize.Dates(df, normalize.DateOptions{
		Column:   f.dateColumn,
		Output:   f.dateOutput,
		Layouts:  layouts,
		Policy:   policy,
		Sentinel: int64(app.Config.Normalize.Sentinel),
	})
	if err != nil {
		return nil, err
	}
	if rep.Invalid() > 0 {
		app.Logger.WarnContext(ctx, "unparseable dates handled",
			slog.String("source", location),
			slog.String("column", rep.Column),
			slog.String("policy", policy.String()),
			slog.Int("rows", rep.Invalid()),
			slog.String("first_invalid", rep.FirstInvalid),
			slog.Int("first_invalid_row", rep.FirstInvalidRow))
	}
	return out, nil
}

// render writes df to the command's output using the configured report
// options.
func render(cmd *cobra.Command, app *App, df *dataframe.DataFrame) error {
	return report.Render(cmd.OutOrStdout(), df, app.Config.ReportOptions())
}
