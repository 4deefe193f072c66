// Package finwrangle reads financial tables from URLs or local files,
// normalizes their date keys, joins them on those keys, aggregates them by
// group and computes log returns and market beta.
//
// Tables are Arrow-backed and immutable: every operation returns a new
// DataFrame that the caller must Release.
//
//	df, err := finwrangle.Read(ctx, finwrangle.Descriptor{Name: "dgs10", Path: "DGS10.csv"})
//	if err != nil {
//		return err
//	}
//	defer df.Release()
//	keyed, report, err := finwrangle.NormalizeDates(df, finwrangle.DateOptions{Column: "DATE"})
package finwrangle

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/pipeline"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/stats"
)

type (
	// DataFrame is an ordered set of uniquely named, equally long columns.
	DataFrame = dataframe.DataFrame
	// Series is a type-erased column.
	Series = dataframe.ISeries

	JoinOptions      = dataframe.JoinOptions
	JoinType         = dataframe.JoinType
	JoinAllOptions   = dataframe.JoinAllOptions
	MultiJoinReport  = dataframe.MultiJoinReport
	AggregateOptions = dataframe.AggregateOptions
	SortOptions      = dataframe.SortOptions

	Descriptor  = source.Descriptor
	CSVSettings = source.CSVSettings
	HTTPOptions = source.HTTPOptions

	DateOptions  = normalize.DateOptions
	ValueOptions = normalize.ValueOptions
	Policy       = normalize.Policy
	Report       = normalize.Report

	Regression = stats.Regression

	Recipe = pipeline.Recipe
	Result = pipeline.Result
)

const (
	InnerJoin     = dataframe.InnerJoin
	LeftJoin      = dataframe.LeftJoin
	RightJoin     = dataframe.RightJoin
	FullOuterJoin = dataframe.FullOuterJoin

	TruncateToCommon = dataframe.TruncateToCommon
	KeepAll          = dataframe.KeepAll

	ByKey   = dataframe.ByKey
	ByValue = dataframe.ByValue

	AggSum   = dataframe.AggSum
	AggMean  = dataframe.AggMean
	AggCount = dataframe.AggCount
	AggMin   = dataframe.AggMin
	AggMax   = dataframe.AggMax
	AggSize  = dataframe.AggSize

	DropRow     = normalize.DropRow
	MarkMissing = normalize.MarkMissing
	UseSentinel = normalize.UseSentinel
	Abort       = normalize.Abort
)

// NewSeries creates a column without missing values.
func NewSeries[T series.Element](name string, values []T) Series {
	return series.New(name, values, nil)
}

// NewNullableSeries creates a column where valid[i] == false marks values[i]
// as missing.
func NewNullableSeries[T series.Element](name string, values []T, valid []bool) Series {
	return series.NewNullable(name, values, valid, nil)
}

// Float64At reads a numeric value as float64; ok is false for missing
// values and non-numeric columns.
func Float64At(s Series, row int) (v float64, ok bool) {
	return series.Float64At(s, row)
}

// NewDataFrame builds a table from columns, rejecting duplicate names and
// unequal lengths. On error the columns are not released.
func NewDataFrame(cols ...Series) (*DataFrame, error) {
	return dataframe.NewChecked(cols...)
}

// Options configures Read and RunRecipe.
type Options struct {
	// HTTP governs remote sources; zero values take the fetcher defaults.
	HTTP      HTTPOptions
	Logger    *slog.Logger
	Allocator memory.Allocator
}

// Option mutates Options.
type Option func(*Options)

// WithLogger routes warnings about fallbacks and dropped rows to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithHTTPOptions replaces the remote fetch settings.
func WithHTTPOptions(h HTTPOptions) Option {
	return func(o *Options) { o.HTTP = h }
}

// WithAllocator sets the Arrow allocator for read tables.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *Options) { o.Allocator = mem }
}

func newReader(opts ...Option) (*source.Reader, Options) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTP.Logger == nil {
		o.HTTP.Logger = o.Logger
	}
	readerOpts := []source.ReaderOption{source.WithLogger(o.Logger)}
	if o.Allocator != nil {
		readerOpts = append(readerOpts, source.WithAllocator(o.Allocator))
	}
	return source.NewReader(source.NewHTTPFetcher(o.HTTP), readerOpts...), o
}

// Read loads the table a descriptor points at, falling back to its local
// copy when the remote source stays unavailable.
func Read(ctx context.Context, d Descriptor, opts ...Option) (*DataFrame, error) {
	reader, _ := newReader(opts...)
	return reader.Read(ctx, d)
}

// NormalizeDates parses a date column into YYYYMMDD keys.
func NormalizeDates(df *DataFrame, opts DateOptions) (*DataFrame, Report, error) {
	return normalize.Dates(df, opts)
}

// NormalizeValues applies a value policy to numeric data such as rates.
func NormalizeValues(df *DataFrame, opts ValueOptions) (*DataFrame, Report, error) {
	return normalize.Values(df, opts)
}

// JoinAll joins frames pairwise on shared keys and reports how many rows of
// each input did not survive.
func JoinAll(frames []*DataFrame, opts JoinAllOptions) (*DataFrame, MultiJoinReport, error) {
	return dataframe.JoinAll(frames, opts)
}

// Aggregate groups df and reduces one value column.
func Aggregate(df *DataFrame, opts AggregateOptions) (*DataFrame, error) {
	return dataframe.Aggregate(df, opts)
}

// LogReturns appends one log-return column per price column and drops the
// first row.
func LogReturns(df *DataFrame, priceColumns, outputs []string) (*DataFrame, error) {
	return stats.LogReturnsColumns(df, priceColumns, outputs)
}

// Beta regresses assetColumn on marketColumn.
func Beta(df *DataFrame, assetColumn, marketColumn string) (Regression, error) {
	return stats.Beta(df, assetColumn, marketColumn)
}

// LoadRecipe reads and validates a YAML recipe.
func LoadRecipe(path string) (*Recipe, error) {
	return pipeline.LoadRecipe(path)
}

// RunRecipe executes a recipe with the built-in defaults for anything the
// recipe leaves out.
func RunRecipe(ctx context.Context, recipe *Recipe, opts ...Option) (*Result, error) {
	reader, o := newReader(opts...)
	return pipeline.NewRunner(reader, pipeline.Options{
		DateLayouts: normalize.DefaultLayouts,
		KeyPolicy:   normalize.DropRow,
		ValuePolicy: normalize.MarkMissing,
		Logger:      o.Logger,
	}).Run(ctx, recipe)
}
