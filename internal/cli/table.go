package cli

import (
	"fmt"
	"log/slog"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/spf13/cobra"
)

func newReadCommand() *cobra.Command {
	var sf sourceFlags
	var sortBy []string
	var descending bool

	cmd := &cobra.Command{
		Use:   "read <path-or-url>",
		Short: "Read a source and print it",
		Long: `Read a CSV, XLSX, JSON, JSONL or Parquet source from a local path or a URL.
Remote sources are retried on transient failures and fall back to --fallback
when given. --date-column normalizes a date column into YYYYMMDD keys.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			df, err := sf.load(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			defer df.Release()

			if len(sortBy) > 0 {
				sorted, err := df.Sort(dataframe.SortOptions{By: sortBy, Descending: descending})
				if err != nil {
					return err
				}
				defer sorted.Release()
				df = sorted
			}
			return render(cmd, app, df)
		},
	}
	sf.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "sort by these columns")
	cmd.Flags().BoolVar(&descending, "desc", false, "sort descending")
	return cmd
}

func newJoinCommand() *cobra.Command {
	var sf sourceFlags
	var (
		on, leftOn, rightOn []string
		joinType, suffix    string
		requireOverlap      bool
	)

	cmd := &cobra.Command{
		Use:   "join <left> <right>",
		Short: "Join two sources on key columns",
		Long: `Join two sources on one or more key columns. Both sources are decoded with
the same source flags. Duplicated keys yield one row per matching pair and
missing keys never match. Without shared keys the result is empty unless
--require-overlap turns that into an error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			if joinType == "" {
				joinType = app.Config.Join.Type
			}
			jt, err := dataframe.ParseJoinType(joinType)
			if err != nil {
				return err
			}
			if suffix == "" {
				suffix = app.Config.Join.Suffix
			}
			if len(leftOn) == 0 {
				leftOn = on
			}
			if len(rightOn) == 0 {
				rightOn = on
			}

			left, err := sf.load(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			defer left.Release()
			right, err := sf.load(cmd.Context(), app, args[1])
			if err != nil {
				return err
			}
			defer right.Release()

			overlap, err := dataframe.KeyOverlap(left, right, leftOn, rightOn)
			if err != nil {
				return err
			}
			app.Logger.InfoContext(cmd.Context(), "joining",
				slog.String("type", jt.String()),
				slog.Int("left_rows", left.Len()),
				slog.Int("right_rows", right.Len()),
				slog.Int("shared_keys", overlap))

			joined, err := left.Join(right, &dataframe.JoinOptions{
				Type:           jt,
				LeftKeys:       leftOn,
				RightKeys:      rightOn,
				Suffix:         suffix,
				RequireOverlap: requireOverlap,
			})
			if err != nil {
				return err
			}
			defer joined.Release()
			return render(cmd, app, joined)
		},
	}
	sf.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&on, "on", []string{"date"}, "key columns present in both sources")
	cmd.Flags().StringSliceVar(&leftOn, "left-on", nil, "left key columns, overriding --on")
	cmd.Flags().StringSliceVar(&rightOn, "right-on", nil, "right key columns, overriding --on")
	cmd.Flags().StringVar(&joinType, "type", "", "join type (inner|left|right|outer)")
	cmd.Flags().StringVar(&suffix, "suffix", "", "suffix for colliding right-hand column names")
	cmd.Flags().BoolVar(&requireOverlap, "require-overlap", false, "fail when the sources share no key")
	return cmd
}

func newAggregateCommand() *cobra.Command {
	var sf sourceFlags
	var (
		by               []string
		value, fn, alias string
		orderByValue     bool
		descending       bool
		limit            int
	)

	cmd := &cobra.Command{
		Use:   "aggregate <path-or-url>",
		Short: "Group a source and reduce one column",
		Long: `Group rows by one or more columns and reduce a value column with sum, mean,
count, min, max or size. Missing values are excluded from every reduction.
--order-by-value --desc --limit N lists the top N groups.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			f, err := dataframe.ParseAggFunc(fn)
			if err != nil {
				return err
			}
			if f != dataframe.AggSize && value == "" {
				return fmt.Errorf("--value is required for %s", f)
			}

			df, err := sf.load(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			defer df.Release()

			order := dataframe.ByKey
			if orderByValue {
				order = dataframe.ByValue
			}
			out, err := dataframe.Aggregate(df, dataframe.AggregateOptions{
				GroupBy:    by,
				Value:      value,
				Func:       f,
				Alias:      alias,
				OrderBy:    order,
				Descending: descending,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			defer out.Release()
			return render(cmd, app, out)
		},
	}
	sf.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&by, "by", nil, "group columns")
	cmd.Flags().StringVar(&value, "value", "", "column to reduce")
	cmd.Flags().StringVar(&fn, "func", "sum", "reduction (sum|mean|count|min|max|size)")
	cmd.Flags().StringVar(&alias, "as", "", "name of the reduced column")
	cmd.Flags().BoolVar(&orderByValue, "order-by-value", false, "order groups by the reduced value instead of the group key")
	cmd.Flags().BoolVar(&descending, "desc", false, "order descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "keep only the first N groups")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}
