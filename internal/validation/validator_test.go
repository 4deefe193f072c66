package validation_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	dferrors "github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schema implements validation.Schema for testing.
type schema map[string]arrow.DataType

func (s schema) HasColumn(name string) bool {
	_, ok := s[name]
	return ok
}

func (s schema) ColumnType(name string) (arrow.DataType, bool) {
	dt, ok := s[name]
	return dt, ok
}

func TestValidateColumns(t *testing.T) {
	df := schema{"date": arrow.BinaryTypes.String, "close": arrow.PrimitiveTypes.Float64}

	require.NoError(t, validation.ValidateColumns(df, "Join", "date", "close"))

	err := validation.ValidateColumns(df, "Join", "date", "volume")
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
	assert.Contains(t, err.Error(), "volume")

	assert.ErrorIs(t, validation.ValidateColumns(df, "Join", ""), dferrors.ErrInvalidInput)
}

func TestValidateNumericColumns(t *testing.T) {
	df := schema{
		"ticker": arrow.BinaryTypes.String,
		"close":  arrow.PrimitiveTypes.Float64,
		"volume": arrow.PrimitiveTypes.Int64,
	}

	assert.NoError(t, validation.ValidateNumericColumns(df, "Aggregate", "close", "volume"))

	err := validation.ValidateNumericColumns(df, "Aggregate", "ticker")
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "unsupported type: utf8")

	err = validation.ValidateNumericColumns(df, "Aggregate", "missing")
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestValidateLength(t *testing.T) {
	assert.NoError(t, validation.ValidateLength(3, 3, "New", "column close"))

	err := validation.ValidateLength(3, 2, "New", "column close")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column close: expected length 3, got 2")
}

func TestValidateUniqueNames(t *testing.T) {
	assert.NoError(t, validation.ValidateUniqueNames("New", "a", "b"))
	assert.ErrorContains(t, validation.ValidateUniqueNames("New", "a", "a"), `duplicate column name "a"`)
	assert.ErrorContains(t, validation.ValidateUniqueNames("New", "a", ""), "column 1 has an empty name")
}

type sampleSource struct {
	Name   string `yaml:"name" validate:"required"`
	URL    string `yaml:"url" validate:"required_without=Path,omitempty,url"`
	Path   string `yaml:"path" validate:"required_without=URL"`
	Format string `yaml:"format" validate:"omitempty,oneof=csv xlsx"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, validation.ValidateStruct("Read", sampleSource{Name: "prices", Path: "prices.csv"}))
	assert.NoError(t, validation.ValidateStruct("Read", sampleSource{Name: "prices", URL: "https://example.com/p.csv"}))

	err := validation.ValidateStruct("Read", sampleSource{Format: "txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "path is required when url is empty")
	assert.Contains(t, err.Error(), `format must be one of [csv xlsx], got "txt"`)

	err = validation.ValidateStruct("Read", sampleSource{Name: "p", URL: "not a url"})
	assert.ErrorContains(t, err, "url must be a valid URL")
}
