package cli

import (
	"encoding/json"
	"fmt"

	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := AppFrom(cmd.Context())
			info := version.Info()
			if !verbose {
				info.Deps = nil
			}

			out := cmd.OutOrStdout()
			switch app.Config.ReportOptions().Format {
			case report.FormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case report.FormatYAML:
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(info)
			}

			fmt.Fprint(out, info.String())
			if verbose {
				fmt.Fprintln(out, "Dependencies:")
				for _, d := range info.Deps {
					fmt.Fprintf(out, "  %s %s\n", d.Path, d.Version)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include module dependencies")
	return cmd
}
