// Package pipeline runs recipe files: the linear read, normalize, join,
// returns, aggregate and report flow over named sources.
package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/monitoring"
	"github.com/paveg/finwrangle/internal/normalize"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/validation"
	"gopkg.in/yaml.v3"
)

// DefaultReturnSuffix is appended to price columns to name their returns.
const DefaultReturnSuffix = "_return"

// Recipe describes one pipeline run.
type Recipe struct {
	Name      string         `yaml:"name" validate:"required"`
	Sources   []SourceStep   `yaml:"sources" validate:"required,min=1"`
	Join      *JoinStep      `yaml:"join"`
	Returns   *ReturnsStep   `yaml:"returns"`
	Derive    []DeriveStep   `yaml:"derive" validate:"dive"`
	Beta      *BetaStep      `yaml:"beta"`
	Aggregate *AggregateStep `yaml:"aggregate"`
	Report    ReportStep     `yaml:"report"`
}

// SourceStep reads one source and shapes it for the join. Steps apply in
// field order: dates, values, rename, select.
type SourceStep struct {
	source.Descriptor `yaml:",inline"`

	Dates  *DateStep         `yaml:"dates"`
	Values []ValueStep       `yaml:"values"`
	Rename map[string]string `yaml:"rename"`
	Select []string          `yaml:"select"`
}

// DateStep normalizes a date column into YYYYMMDD keys.
type DateStep struct {
	Column   string   `yaml:"column" validate:"required"`
	Output   string   `yaml:"output"`
	Layouts  []string `yaml:"layouts"`
	Policy   string   `yaml:"policy"`
	Sentinel int64    `yaml:"sentinel"`
}

// ValueStep applies the value policy to a numeric column.
type ValueStep struct {
	Column   string   `yaml:"column" validate:"required"`
	Policy   string   `yaml:"policy"`
	Sentinel *float64 `yaml:"sentinel"`
}

// JoinStep joins all sources on shared key columns.
type JoinStep struct {
	Keys []string `yaml:"keys" validate:"required,min=1"`
	// Policy is truncate_to_common (inner) or keep_all (full outer).
	Policy         string `yaml:"policy" validate:"omitempty,oneof=truncate_to_common keep_all"`
	RequireOverlap bool   `yaml:"require_overlap"`
}

// ReturnsStep adds log-return columns.
type ReturnsStep struct {
	Columns []string `yaml:"columns" validate:"required,min=1"`
	Suffix  string   `yaml:"suffix"`
}

// DeriveStep adds a calendar column computed from a date key.
type DeriveStep struct {
	Kind   string `yaml:"kind" validate:"required,oneof=month year"`
	Key    string `yaml:"key" validate:"required"`
	Output string `yaml:"output" validate:"required"`
}

// BetaStep regresses one return column on another.
type BetaStep struct {
	Asset  string `yaml:"asset" validate:"required"`
	Market string `yaml:"market" validate:"required"`
}

// AggregateStep groups the table and reduces one column.
type AggregateStep struct {
	GroupBy    []string `yaml:"group_by" validate:"required,min=1"`
	Value      string   `yaml:"value"`
	Func       string   `yaml:"func" validate:"required"`
	Alias      string   `yaml:"alias"`
	OrderBy    string   `yaml:"order_by" validate:"omitempty,oneof=key value"`
	Descending bool     `yaml:"descending"`
	Limit      int      `yaml:"limit" validate:"min=0"`
}

// ReportStep orders the final table and optionally writes it as CSV.
type ReportStep struct {
	Sort       []string `yaml:"sort"`
	Descending bool     `yaml:"descending"`
	Output     string   `yaml:"output"`
	NullToken  string   `yaml:"null_token"`
}

// LoadRecipe reads and validates a recipe file. Relative source paths are
// resolved against the recipe's directory.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError("LoadRecipe", path, err)
	}
	r, err := ParseRecipe(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range r.Sources {
		r.Sources[i].Path = resolve(dir, r.Sources[i].Path)
		r.Sources[i].FallbackPath = resolve(dir, r.Sources[i].FallbackPath)
	}
	return r, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ParseRecipe decodes and validates a YAML recipe. Unknown keys are errors.
func ParseRecipe(data []byte) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, errors.NewParseError("ParseRecipe", "recipe", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the recipe without touching any source.
func (r *Recipe) Validate() error {
	const op = "Recipe"
	if err := validation.ValidateStruct(op, r); err != nil {
		return err
	}

	seen := make(map[string]bool, len(r.Sources))
	for _, s := range r.Sources {
		if err := s.Descriptor.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return errors.NewInvalidInputError(op, fmt.Sprintf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = true
		if s.Dates != nil {
			if err := validation.ValidateStruct(op, s.Dates); err != nil {
				return err
			}
			if _, err := normalize.ParsePolicy(s.Dates.Policy); err != nil {
				return errors.NewInvalidInputError(op, fmt.Sprintf("source %s: dates.policy: %v", s.Name, err))
			}
		}
		for _, v := range s.Values {
			if err := validation.ValidateStruct(op, v); err != nil {
				return err
			}
			if _, err := normalize.ParsePolicy(v.Policy); err != nil {
				return errors.NewInvalidInputError(op, fmt.Sprintf("source %s: values.policy: %v", s.Name, err))
			}
		}
	}
	if len(r.Sources) > 1 && r.Join == nil {
		return errors.NewInvalidInputError(op, "join is required with more than one source")
	}
	if r.Aggregate != nil {
		f, err := dataframe.ParseAggFunc(r.Aggregate.Func)
		if err != nil {
			return err
		}
		if f != dataframe.AggSize && r.Aggregate.Value == "" {
			return errors.NewInvalidInputError(op, fmt.Sprintf("aggregate.value is required for %s", f))
		}
	}
	return nil
}

// Plan describes the stages Run would execute, without reading anything.
func (r *Recipe) Plan() monitoring.Plan {
	b := monitoring.NewPlanBuilder()
	for _, s := range r.Sources {
		location := s.Path
		if s.URL != "" {
			location = s.URL
		}
		desc := fmt.Sprintf("%s from %s (%s)", s.Name, location, s.ResolvedFormat())
		if s.Dates != nil {
			desc += fmt.Sprintf(", dates %s", s.Dates.Column)
		}
		b.Leaf("read", desc)
	}
	if r.Join != nil && len(r.Sources) > 1 {
		policy := r.Join.Policy
		if policy == "" {
			policy = dataframe.TruncateToCommon.String()
		}
		b.Then("join", fmt.Sprintf("on %s, %s", strings.Join(r.Join.Keys, ", "), policy))
	}
	if r.Returns != nil {
		b.Then("returns", strings.Join(r.Returns.Columns, ", "))
	}
	for _, d := range r.Derive {
		b.Then("derive", fmt.Sprintf("%s %s from %s", d.Output, d.Kind, d.Key))
	}
	if r.Beta != nil {
		b.Then("beta", fmt.Sprintf("%s on %s", r.Beta.Asset, r.Beta.Market))
	}
	if a := r.Aggregate; a != nil {
		b.Then("aggregate", fmt.Sprintf("%s(%s) by %s", a.Func, a.Value, strings.Join(a.GroupBy, ", ")))
	}
	if len(r.Report.Sort) > 0 {
		b.Then("sort", strings.Join(r.Report.Sort, ", "))
	}
	if r.Report.Output != "" {
		b.Then("write", r.Report.Output)
	}
	return b.Build()
}
