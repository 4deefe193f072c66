package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/paveg/finwrangle/internal/monitoring"
	"github.com/paveg/finwrangle/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var showPlan, showMetrics bool

	cmd := &cobra.Command{
		Use:   "run <recipe.yaml>",
		Short: "Run a recipe of read, normalize, join and summarize stages",
		Long: `Run a YAML recipe. Sources are read concurrently, normalized, joined on
their date keys, and then passed through the optional returns, derive, beta
and aggregate stages before the result is sorted, written and rendered.
--plan prints the stages without running them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			recipe, err := pipeline.LoadRecipe(args[0])
			if err != nil {
				return err
			}
			if showPlan {
				_, err := io.WriteString(cmd.OutOrStdout(), recipe.Plan().String())
				return err
			}

			keyPolicy, err := app.Config.KeyPolicy()
			if err != nil {
				return err
			}
			valuePolicy, err := app.Config.ValuePolicy()
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(app.Reader, pipeline.Options{
				Workers:     app.Config.Workers,
				DateLayouts: app.Config.Normalize.DateLayouts,
				KeyPolicy:   keyPolicy,
				ValuePolicy: valuePolicy,
				Sentinel:    app.Config.Normalize.Sentinel,
				Logger:      app.Logger,
			})
			result, err := runner.Run(cmd.Context(), recipe)
			if err != nil {
				return err
			}
			defer result.Release()

			if showMetrics {
				writeMetrics(cmd.ErrOrStderr(), result.RunID, result.Metrics, result.Summary)
			}
			if result.Regression != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), result.Regression.String())
			}
			return render(cmd, app, result.Table)
		},
	}
	cmd.Flags().BoolVar(&showPlan, "plan", false, "print the stages and exit")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print per-stage timings and row counts to stderr")
	return cmd
}

func writeMetrics(w io.Writer, runID string, metrics []monitoring.StageMetrics, summary monitoring.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("run " + runID)
	t.AppendHeader(table.Row{"stage", "duration", "rows in", "rows out", "dropped", "error"})
	for _, m := range metrics {
		t.AppendRow(table.Row{m.Stage, m.Duration.String(), m.RowsIn, m.RowsOut, m.RowsDropped(), m.Err})
	}
	t.AppendFooter(table.Row{
		strconv.Itoa(summary.Stages) + " stages", summary.TotalDuration.String(), "", "", summary.RowsDropped, "",
	})
	t.Render()
}
