package cli

import (
	"fmt"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/stats"
	"github.com/spf13/cobra"
)

func newReturnsCommand() *cobra.Command {
	var sf sourceFlags
	var prices, outputs []string

	cmd := &cobra.Command{
		Use:   "returns <path-or-url>",
		Short: "Add log-return columns to a price source",
		Long: `Compute r[i] = ln(p[i]) - ln(p[i-1]) for each --price column. The first row
has no return and is dropped. Missing, zero, negative or non-finite prices
are errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			if len(outputs) == 0 {
				for _, p := range prices {
					outputs = append(outputs, p+"_return")
				}
			}

			df, err := sf.load(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			defer df.Release()

			out, err := stats.LogReturnsColumns(df, prices, outputs)
			if err != nil {
				return err
			}
			defer out.Release()
			return render(cmd, app, out)
		},
	}
	sf.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&prices, "price", nil, "price columns")
	cmd.Flags().StringSliceVar(&outputs, "as", nil, "names of the return columns, <price>_return by default")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newBetaCommand() *cobra.Command {
	var sf sourceFlags
	var asset, market string
	var fromPrices bool

	cmd := &cobra.Command{
		Use:   "beta <path-or-url>",
		Short: "Estimate the beta of one return series against another",
		Long: `Regress --asset on --market by ordinary least squares and print beta, alpha,
their standard errors, t statistics, two-sided p-values and R squared. With
--prices both columns are prices and are turned into log returns first.
Rows with a missing value in either column are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			df, err := sf.load(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			defer df.Release()

			y, x := asset, market
			if fromPrices {
				y, x = asset+"_return", market+"_return"
				returns, err := stats.LogReturnsColumns(df, []string{asset, market}, []string{y, x})
				if err != nil {
					return err
				}
				defer returns.Release()
				df = returns
			}

			reg, err := stats.Beta(df, y, x)
			if err != nil {
				return err
			}
			if app.Config.ReportOptions().Format == report.FormatTable {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), reg.String())
				return err
			}
			out := regressionFrame(reg)
			defer out.Release()
			return render(cmd, app, out)
		},
	}
	sf.register(cmd.Flags())
	cmd.Flags().StringVar(&asset, "asset", "", "asset return column")
	cmd.Flags().StringVar(&market, "market", "", "market return column")
	cmd.Flags().BoolVar(&fromPrices, "prices", false, "columns hold prices; compute log returns first")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("market")
	return cmd
}

// regressionFrame lays a fit out as a single row for the machine formats.
func regressionFrame(r stats.Regression) *dataframe.DataFrame {
	one := func(name string, v float64) dataframe.ISeries {
		return series.New(name, []float64{v}, nil)
	}
	return dataframe.New(
		one("beta", r.Beta),
		one("beta_se", r.StdErrBeta),
		one("beta_t", r.TBeta),
		one("beta_p", r.PBeta),
		one("alpha", r.Alpha),
		one("alpha_se", r.StdErrAlpha),
		one("alpha_t", r.TAlpha),
		one("alpha_p", r.PAlpha),
		one("r2", r.RSquared),
		series.New("n", []int64{int64(r.N)}, nil),
	)
}
