package cli

import (
	"os"

	dferrors "github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/scrape"
	"github.com/paveg/finwrangle/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// scrapeFile is the YAML layout read by the scrape command.
type scrapeFile struct {
	URLTemplate string             `yaml:"url_template" validate:"required"`
	Tickers     []string           `yaml:"tickers"`
	Fields      []scrape.FieldSpec `yaml:"fields" validate:"required,min=1,dive"`
}

func loadScrapeFile(path string) (scrapeFile, error) {
	const op = "LoadScrapeFile"
	var sf scrapeFile
	data, err := os.ReadFile(path)
	if err != nil {
		return sf, dferrors.NewSourceUnavailableError(op, path, err)
	}
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return sf, dferrors.NewParseError(op, "decode "+path, err)
	}
	return sf, validation.ValidateStruct(op, sf)
}

func newScrapeCommand() *cobra.Command {
	var tickers []string

	cmd := &cobra.Command{
		Use:   "scrape <fields.yaml>",
		Short: "Extract profile fields from one web page per ticker",
		Long: `Fetch url_template with {ticker} replaced by each ticker and extract every
field from the page, either with a CSS selector or by reading the line a
fixed offset after a marker line. A field that cannot be extracted is a
missing value.

  url_template: https://example.com/quote/{ticker}/profile
  tickers: [ACME, BOLT]
  fields:
    - {name: sector, selector: "span.sector"}
    - {name: employees, marker: "Employees", offset: 1, numeric: true}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd.Context())
			sf, err := loadScrapeFile(args[0])
			if err != nil {
				return err
			}
			if len(tickers) > 0 {
				sf.Tickers = tickers
			}
			if len(sf.Tickers) == 0 {
				return dferrors.NewInvalidInputError("scrape", "no tickers given")
			}

			fields := make([]scrape.Field, 0, len(sf.Fields))
			for _, spec := range sf.Fields {
				f, err := spec.Build()
				if err != nil {
					return err
				}
				fields = append(fields, f)
			}

			df, err := scrape.Profiles(cmd.Context(), app.Fetcher, scrape.ProfileOptions{
				URLTemplate: sf.URLTemplate,
				Tickers:     sf.Tickers,
				Fields:      fields,
				Workers:     app.Config.Workers,
				Logger:      app.Logger,
			})
			if err != nil {
				return err
			}
			defer df.Release()
			return render(cmd, app, df)
		},
	}
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "tickers, replacing those in the file")
	return cmd
}
