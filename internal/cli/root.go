// Package cli implements the finwrangle command line.
package cli

import (
	"context"
	"log/slog"

	"github.com/paveg/finwrangle/internal/config"
	"github.com/paveg/finwrangle/internal/logging"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/spf13/cobra"
)

// App is what every command needs, built once from the loaded config.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Fetcher source.Fetcher
	Reader  *source.Reader
}

type appKey struct{}

// AppFrom returns the App stored by the root command, or one built from the
// default configuration.
func AppFrom(ctx context.Context) *App {
	if app, ok := ctx.Value(appKey{}).(*App); ok {
		return app
	}
	return newApp(config.Default(), logging.Discard())
}

func newApp(cfg config.Config, logger *slog.Logger) *App {
	retries := cfg.HTTP.MaxRetries
	if retries == 0 {
		retries = source.NoRetries
	}
	fetcher := source.NewHTTPFetcher(source.HTTPOptions{
		Timeout:     cfg.HTTP.Timeout,
		MaxRetries:  retries,
		BaseBackoff: cfg.HTTP.BaseBackoff,
		UserAgent:   cfg.HTTP.UserAgent,
		Logger:      logger,
	})
	return &App{
		Config:  cfg,
		Logger:  logger,
		Fetcher: fetcher,
		Reader:  source.NewReader(fetcher, source.WithLogger(logger)),
	}
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "finwrangle",
		Short: "Read, normalize, join and summarize financial tables",
		Long: `finwrangle reads price, rate and metadata tables from URLs or local files,
normalizes their date keys, joins them, computes log returns and market beta,
aggregates by group and renders the result as a table, markdown, CSV, JSON or YAML.`,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}, cmd.ErrOrStderr())
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, newApp(cfg, logger)))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./finwrangle.yaml when present)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")
	pf.StringP("format", "o", "", "output format (table|markdown|csv|json|yaml)")
	pf.Int("max-rows", 0, "maximum rows to render, 0 for all")
	pf.Int("precision", 0, "decimals for float columns in table and markdown output")
	pf.Duration("timeout", 0, "per-attempt timeout for remote sources")
	pf.Int("retries", 0, "retries for transient fetch failures")
	pf.Int("workers", 0, "concurrent source reads and page fetches")

	_ = root.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "markdown", "csv", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newReadCommand(),
		newJoinCommand(),
		newAggregateCommand(),
		newReturnsCommand(),
		newBetaCommand(),
		newScrapeCommand(),
		newRunCommand(),
		newVersionCommand(),
	)
	return root
}
