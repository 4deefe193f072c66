package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/logging"
	"github.com/paveg/finwrangle/internal/monitoring"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/parallel"
	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/stats"
)

// Options holds the defaults a recipe does not spell out.
type Options struct {
	// Workers bounds concurrent source reads.
	Workers     int
	DateLayouts []string
	KeyPolicy   normalize.Policy
	ValuePolicy normalize.Policy
	Sentinel    float64
	Logger      *slog.Logger
	// NewRunID generates run ids; uuid.NewString when nil.
	NewRunID func() string
}

// Runner executes recipes.
type Runner struct {
	reader *source.Reader
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a runner reading sources through reader.
func NewRunner(reader *source.Reader, opts Options) *Runner {
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Runner{
		reader: reader,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
	}
}

// SourceReport is the normalization outcome for one source.
type SourceReport struct {
	Source string
	Rows   int // After normalization
	Dates  *normalize.Report
	Values []normalize.Report
}

// Result is the outcome of a run. The caller owns Table.
type Result struct {
	RunID      string
	Table      *dataframe.DataFrame
	Metrics    []monitoring.StageMetrics
	Summary    monitoring.Summary
	Sources    []SourceReport
	Join       *dataframe.MultiJoinReport
	Regression *stats.Regression
}

// Release frees the result table.
func (r *Result) Release() {
	if r != nil && r.Table != nil {
		r.Table.Release()
	}
}

type sourceOutput struct {
	df     *dataframe.DataFrame
	report SourceReport
}

// Run executes the recipe. Every log record of the run carries its run id.
func (r *Runner) Run(ctx context.Context, recipe *Recipe) (*Result, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	runID := r.opts.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	collector := monitoring.NewCollector(r.logger)
	r.logger.InfoContext(ctx, "pipeline started",
		slog.String("recipe", recipe.Name),
		slog.Int("sources", len(recipe.Sources)))

	result, err := r.run(ctx, recipe, collector)
	if err != nil {
		r.logger.ErrorContext(ctx, "pipeline failed", slog.String("recipe", recipe.Name), slog.Any("error", err))
		return nil, err
	}
	result.RunID = runID
	result.Metrics = collector.Metrics()
	result.Summary = collector.Summary()

	r.logger.InfoContext(ctx, "pipeline finished",
		slog.String("recipe", recipe.Name),
		slog.Int("rows", result.Table.Len()),
		slog.Int("stages", result.Summary.Stages),
		slog.Duration("duration", result.Summary.TotalDuration))
	return result, nil
}

func (r *Runner) run(ctx context.Context, recipe *Recipe, collector *monitoring.Collector) (*Result, error) {
	outputs, err := r.readSources(ctx, recipe.Sources, collector)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	frames := make([]*dataframe.DataFrame, len(outputs))
	for i, out := range outputs {
		frames[i] = out.df
		result.Sources = append(result.Sources, out.report)
	}

	table, err := r.join(recipe, frames, result, collector)
	for _, f := range frames {
		f.Release()
	}
	if err != nil {
		return nil, err
	}

	// Each step replaces table; on error the current table is released.
	step := func(stage string, fn func(*dataframe.DataFrame) (*dataframe.DataFrame, error)) error {
		return collector.Record(stage, table.Len(), func() (int, error) {
			next, err := fn(table)
			if err != nil {
				return 0, err
			}
			table.Release()
			table = next
			return table.Len(), nil
		})
	}
	fail := func(err error) (*Result, error) {
		table.Release()
		return nil, err
	}

	if rs := recipe.Returns; rs != nil {
		suffix := rs.Suffix
		if suffix == "" {
			suffix = DefaultReturnSuffix
		}
		outputs := make([]string, len(rs.Columns))
		for i, c := range rs.Columns {
			outputs[i] = c + suffix
		}
		if err := step("returns", func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
			return stats.LogReturnsColumns(df, rs.Columns, outputs)
		}); err != nil {
			return fail(err)
		}
	}

	for _, d := range recipe.Derive {
		derive := normalize.DeriveMonth
		if d.Kind == "year" {
			derive = normalize.DeriveYear
		}
		if err := step("derive:"+d.Output, func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
			return derive(df, d.Key, d.Output)
		}); err != nil {
			return fail(err)
		}
	}

	if b := recipe.Beta; b != nil {
		err := collector.Record("beta", table.Len(), func() (int, error) {
			reg, err := stats.Beta(table, b.Asset, b.Market)
			if err != nil {
				return 0, err
			}
			result.Regression = &reg
			r.logger.InfoContext(ctx, "beta estimated",
				slog.String("asset", b.Asset),
				slog.String("market", b.Market),
				slog.Float64("beta", reg.Beta),
				slog.Float64("p_value", reg.PBeta),
				slog.Int("n", reg.N))
			return table.Len(), nil
		})
		if err != nil {
			return fail(err)
		}
	}

	if a := recipe.Aggregate; a != nil {
		opts, err := aggregateOptions(a)
		if err != nil {
			return fail(err)
		}
		if err := step("aggregate", func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
			return dataframe.Aggregate(df, opts)
		}); err != nil {
			return fail(err)
		}
	}

	if rep := recipe.Report; len(rep.Sort) > 0 {
		if err := step("sort", func(df *dataframe.DataFrame) (*dataframe.DataFrame, error) {
			return df.Sort(dataframe.SortOptions{By: rep.Sort, Descending: rep.Descending})
		}); err != nil {
			return fail(err)
		}
	}

	if out := recipe.Report.Output; out != "" {
		err := collector.Record("write", table.Len(), func() (int, error) {
			return table.Len(), report.WriteFile(out, table, recipe.Report.NullToken)
		})
		if err != nil {
			return fail(err)
		}
	}

	result.Table = table
	return result, nil
}

// readSources reads and normalizes every source concurrently. Outputs keep
// recipe order.
func (r *Runner) readSources(ctx context.Context, steps []SourceStep, collector *monitoring.Collector) ([]sourceOutput, error) {
	outputs := make([]sourceOutput, len(steps))
	_, err := parallel.ProcessIndexed(ctx, parallel.NewWorkerPool(r.opts.Workers), steps,
		func(ctx context.Context, i int, s SourceStep) (struct{}, error) {
			out, err := r.readSource(ctx, s, collector)
			if err != nil {
				return struct{}{}, err
			}
			outputs[i] = out
			return struct{}{}, nil
		})
	if err != nil {
		for _, out := range outputs {
			if out.df != nil {
				out.df.Release()
			}
		}
		return nil, err
	}
	return outputs, nil
}

func (r *Runner) readSource(ctx context.Context, s SourceStep, collector *monitoring.Collector) (sourceOutput, error) {
	out := sourceOutput{report: SourceReport{Source: s.Name}}

	var df *dataframe.DataFrame
	err := collector.Record("read:"+s.Name, 0, func() (int, error) {
		var err error
		df, err = r.reader.Read(ctx, s.Descriptor)
		if err != nil {
			return 0, err
		}
		return df.Len(), nil
	})
	if err != nil {
		return out, err
	}

	err = collector.Record("normalize:"+s.Name, df.Len(), func() (int, error) {
		next, err := r.shapeSource(ctx, s, df, &out.report)
		df.Release()
		df = next
		if err != nil {
			return 0, err
		}
		return df.Len(), nil
	})
	if err != nil {
		return out, err
	}
	out.df = df
	out.report.Rows = df.Len()
	return out, nil
}

// shapeSource applies the date, value, rename and select steps. It never
// releases df; on error it returns nil.
func (r *Runner) shapeSource(ctx context.Context, s SourceStep, df *dataframe.DataFrame, rep *SourceReport) (*dataframe.DataFrame, error) {
	current := df
	retain := func(next *dataframe.DataFrame) {
		if current != df {
			current.Release()
		}
		current = next
	}
	fail := func(err error) (*dataframe.DataFrame, error) {
		if current != df {
			current.Release()
		}
		return nil, err
	}

	if d := s.Dates; d != nil {
		policy, _ := normalize.ParsePolicy(d.Policy)
		layouts := d.Layouts
		if len(layouts) == 0 {
			layouts = r.opts.DateLayouts
		}
		next, dr, err := normalize.Dates(current, normalize.DateOptions{
			Column:   d.Column,
			Output:   d.Output,
			Layouts:  layouts,
			Policy:   orDefault(policy, r.opts.KeyPolicy),
			Sentinel: d.Sentinel,
		})
		if err != nil {
			return fail(err)
		}
		retain(next)
		rep.Dates = &dr
		r.logReport(ctx, s.Name, dr)
	}

	for _, v := range s.Values {
		policy, _ := normalize.ParsePolicy(v.Policy)
		sentinel := r.opts.Sentinel
		if v.Sentinel != nil {
			sentinel = *v.Sentinel
		}
		next, vr, err := normalize.Values(current, normalize.ValueOptions{
			Column:   v.Column,
			Policy:   orDefault(policy, r.opts.ValuePolicy),
			Sentinel: sentinel,
		})
		if err != nil {
			return fail(err)
		}
		retain(next)
		rep.Values = append(rep.Values, vr)
		r.logReport(ctx, s.Name, vr)
	}

	if len(s.Rename) > 0 {
		next, err := current.Rename(s.Rename)
		if err != nil {
			return fail(err)
		}
		retain(next)
	}
	if len(s.Select) > 0 {
		next, err := current.Select(s.Select...)
		if err != nil {
			return fail(err)
		}
		retain(next)
	}

	if current == df {
		// The caller releases df; hand back an independent reference.
		return df.Select(df.Columns()...)
	}
	return current, nil
}

func orDefault(p, def normalize.Policy) normalize.Policy {
	if p == normalize.PolicyDefault {
		return def
	}
	return p
}

func (r *Runner) logReport(ctx context.Context, src string, rep normalize.Report) {
	if rep.Invalid() == 0 {
		return
	}
	r.logger.WarnContext(ctx, "invalid values handled",
		slog.String("source", src),
		slog.String("column", rep.Column),
		slog.Int("dropped", rep.Dropped),
		slog.Int("marked_missing", rep.MarkedMissing),
		slog.Int("sentinel_filled", rep.SentinelFilled),
		slog.String("first_invalid", rep.FirstInvalid),
		slog.Int("first_invalid_row", rep.FirstInvalidRow))
}

func (r *Runner) join(recipe *Recipe, frames []*dataframe.DataFrame, result *Result, collector *monitoring.Collector) (*dataframe.DataFrame, error) {
	rowsIn := 0
	for _, f := range frames {
		rowsIn += f.Len()
	}
	if len(frames) == 1 {
		return frames[0].Select(frames[0].Columns()...)
	}

	j := recipe.Join
	policy := dataframe.TruncateToCommon
	if j.Policy == dataframe.KeepAll.String() {
		policy = dataframe.KeepAll
	}
	names := make([]string, len(frames))
	suffixes := make([]string, len(frames))
	for i, s := range recipe.Sources {
		names[i] = s.Name
		suffixes[i] = "_" + s.Name
	}

	var table *dataframe.DataFrame
	err := collector.Record("join", rowsIn, func() (int, error) {
		joined, rep, err := dataframe.JoinAll(frames, dataframe.JoinAllOptions{
			Keys:           j.Keys,
			Policy:         policy,
			Suffixes:       suffixes,
			RequireOverlap: j.RequireOverlap,
			Names:          names,
		})
		if err != nil {
			return 0, err
		}
		table = joined
		result.Join = &rep
		return joined.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

func aggregateOptions(a *AggregateStep) (dataframe.AggregateOptions, error) {
	f, err := dataframe.ParseAggFunc(a.Func)
	if err != nil {
		return dataframe.AggregateOptions{}, err
	}
	order := dataframe.ByKey
	if a.OrderBy == "value" {
		order = dataframe.ByValue
	}
	return dataframe.AggregateOptions{
		GroupBy:    a.GroupBy,
		Value:      a.Value,
		Func:       f,
		Alias:      a.Alias,
		OrderBy:    order,
		Descending: a.Descending,
		Limit:      a.Limit,
	}, nil
}
