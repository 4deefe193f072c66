// Package config loads finwrangle's settings from defaults, an optional YAML
// file, FINWRANGLE_ environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/report"
	"github.com/paveg/finwrangle/internal/version"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: FINWRANGLE_HTTP__MAX_RETRIES sets http.max_retries.
const EnvPrefix = "FINWRANGLE_"

// DefaultFile is read when no config file is named and it exists.
const DefaultFile = "finwrangle.yaml"

// Config is the complete set of settings.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Normalize NormalizeConfig `koanf:"normalize"`
	Join      JoinConfig      `koanf:"join"`
	Report    ReportConfig    `koanf:"report"`
	// Workers bounds concurrent source reads and page fetches.
	Workers int `koanf:"workers"`
}

// HTTPConfig configures remote source fetching.
type HTTPConfig struct {
	Timeout     time.Duration `koanf:"timeout"`     // per attempt
	MaxRetries  int           `koanf:"max_retries"` // 0 disables retrying
	BaseBackoff time.Duration `koanf:"base_backoff"`
	UserAgent   string        `koanf:"user_agent"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NormalizeConfig holds the default normalization policies.
type NormalizeConfig struct {
	DateLayouts []string `koanf:"date_layouts"`
	KeyPolicy   string   `koanf:"key_policy"`
	ValuePolicy string   `koanf:"value_policy"`
	Sentinel    float64  `koanf:"sentinel"`
}

// JoinConfig holds join defaults.
type JoinConfig struct {
	Type   string `koanf:"type"`
	Suffix string `koanf:"suffix"`
}

// ReportConfig holds rendering defaults.
type ReportConfig struct {
	Format    string `koanf:"format"`
	MaxRows   int    `koanf:"max_rows"`
	Precision int    `koanf:"precision"`
	NullToken string `koanf:"null_token"`
}

// defaults is the lowest configuration layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"http.timeout":           "30s",
		"http.max_retries":       3,
		"http.base_backoff":      "500ms",
		"http.user_agent":        version.UserAgent(),
		"log.level":              "info",
		"log.format":             "text",
		"normalize.date_layouts": append([]string(nil), normalize.DefaultLayouts...),
		"normalize.key_policy":   "drop",
		"normalize.value_policy": "missing",
		"normalize.sentinel":     -99.0,
		"join.type":              "inner",
		"join.suffix":            dataframe.DefaultJoinSuffix,
		"report.format":          "table",
		"report.max_rows":        50,
		"report.precision":       0,
		"report.null_token":      "",
		"workers":                4,
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"format":     "report.format",
	"max-rows":   "report.max_rows",
	"precision":  "report.precision",
	"timeout":    "http.timeout",
	"retries":    "http.max_retries",
	"workers":    "workers",
}

// Default returns the built-in configuration, ignoring files, the
// environment and flags.
func Default() Config {
	k := koanf.New(".")
	var cfg Config
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		panic(fmt.Sprintf("loading defaults: %v", err))
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("decoding defaults: %v", err))
	}
	return cfg
}

// Load layers defaults, the YAML file at path (or DefaultFile when path is
// empty and the file exists), the environment and the flags that were
// explicitly set. The result is validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey turns FINWRANGLE_HTTP__MAX_RETRIES into http.max_retries.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return errors.NewInvalidInputError("Config", fmt.Sprintf(format, args...))
	}

	if c.HTTP.Timeout <= 0 {
		return fail("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxRetries < 0 {
		return fail("http.max_retries must be non-negative, got %d", c.HTTP.MaxRetries)
	}
	if c.HTTP.BaseBackoff <= 0 {
		return fail("http.base_backoff must be positive, got %s", c.HTTP.BaseBackoff)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fail("log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := c.KeyPolicy(); err != nil {
		return fail("normalize.key_policy: %v", err)
	}
	if _, err := c.ValuePolicy(); err != nil {
		return fail("normalize.value_policy: %v", err)
	}
	if _, err := dataframe.ParseJoinType(c.Join.Type); err != nil {
		return fail("join.type: %v", err)
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return fail("report.format must be table, markdown, csv, json or yaml, got %q", c.Report.Format)
	}
	if c.Report.MaxRows < 0 {
		return fail("report.max_rows must be non-negative, got %d", c.Report.MaxRows)
	}
	if c.Report.Precision < 0 {
		return fail("report.precision must be non-negative, got %d", c.Report.Precision)
	}
	if c.Workers <= 0 {
		return fail("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// KeyPolicy parses the configured date key policy.
func (c Config) KeyPolicy() (normalize.Policy, error) {
	return normalize.ParsePolicy(c.Normalize.KeyPolicy)
}

// ValuePolicy parses the configured value policy.
func (c Config) ValuePolicy() (normalize.Policy, error) {
	return normalize.ParsePolicy(c.Normalize.ValuePolicy)
}

// ReportOptions converts the report section into renderer options.
func (c Config) ReportOptions() report.Options {
	format, _ := report.ParseFormat(c.Report.Format)
	return report.Options{
		Format:    format,
		MaxRows:   c.Report.MaxRows,
		Precision: c.Report.Precision,
		NullToken: c.Report.NullToken,
	}
}
