package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paveg/finwrangle/internal/config"
	dferrors "github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValues(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.HTTP.BaseBackoff)
	assert.Equal(t, version.UserAgent(), cfg.HTTP.UserAgent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, normalize.DefaultLayouts, cfg.Normalize.DateLayouts)
	assert.InDelta(t, -99.0, cfg.Normalize.Sentinel, 0)
	assert.Equal(t, "_right", cfg.Join.Suffix)
	assert.Equal(t, 50, cfg.Report.MaxRows)
	assert.Equal(t, 4, cfg.Workers)
	require.NoError(t, cfg.Validate())

	key, err := cfg.KeyPolicy()
	require.NoError(t, err)
	assert.Equal(t, normalize.DropRow, key)
	value, err := cfg.ValuePolicy()
	require.NoError(t, err)
	assert.Equal(t, normalize.MarkMissing, value)
	assert.Equal(t, report.FormatTable, cfg.ReportOptions().Format)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{name: "valid config", mutate: func(*config.Config) {}},
		{
			name:          "zero timeout",
			mutate:        func(c *config.Config) { c.HTTP.Timeout = 0 },
			expectedError: "http.timeout must be positive, got 0s",
		},
		{
			name:          "negative retries",
			mutate:        func(c *config.Config) { c.HTTP.MaxRetries = -1 },
			expectedError: "http.max_retries must be non-negative, got -1",
		},
		{
			name:          "log format",
			mutate:        func(c *config.Config) { c.Log.Format = "xml" },
			expectedError: `log.format must be json or text, got "xml"`,
		},
		{
			name:          "key policy",
			mutate:        func(c *config.Config) { c.Normalize.KeyPolicy = "ignore" },
			expectedError: "normalize.key_policy",
		},
		{
			name:          "join type",
			mutate:        func(c *config.Config) { c.Join.Type = "cross" },
			expectedError: `unknown join type "cross"`,
		},
		{
			name:          "report format",
			mutate:        func(c *config.Config) { c.Report.Format = "html" },
			expectedError: `report.format must be table, markdown, csv, json or yaml, got "html"`,
		},
		{
			name:          "workers",
			mutate:        func(c *config.Config) { c.Workers = 0 },
			expectedError: "workers must be positive, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finwrangle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLayers(t *testing.T) {
	path := writeConfig(t, `
http:
  timeout: 10s
  max_retries: 5
log:
  level: debug
normalize:
  date_layouts: ["2006-01-02"]
  value_policy: sentinel
report:
  format: markdown
`)

	t.Setenv("FINWRANGLE_HTTP__MAX_RETRIES", "7")
	t.Setenv("FINWRANGLE_JOIN__TYPE", "outer")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.Duration("timeout", time.Minute, "")
	flags.String("format", "table", "")
	require.NoError(t, flags.Parse([]string{"--format", "json"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout, "unset flags do not override the file")
	assert.Equal(t, 7, cfg.HTTP.MaxRetries, "environment overrides the file")
	assert.Equal(t, "outer", cfg.Join.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"2006-01-02"}, cfg.Normalize.DateLayouts)
	assert.Equal(t, "sentinel", cfg.Normalize.ValuePolicy)
	assert.Equal(t, "json", cfg.Report.Format, "explicit flags win")
	assert.Equal(t, "_right", cfg.Join.Suffix, "defaults fill the rest")
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "http: [unclosed"), nil)
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "workers: -2\n"), nil)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}
