package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/logging"
	"github.com/paveg/finwrangle/internal/parallel"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/source"
	"github.com/paveg/finwrangle/internal/validation"
)

// TickerPlaceholder is replaced by the escaped ticker in URL templates.
const TickerPlaceholder = "{ticker}"

// Field is one extracted profile column.
type Field struct {
	Name      string
	Extractor Extractor
	// Numeric parses the value as a number ("1,234.5", "12%", "2.5B").
	Numeric bool
}

// FieldSpec is the recipe form of a Field. Exactly one of Selector and
// Marker picks the extractor.
type FieldSpec struct {
	Name     string `yaml:"name" validate:"required"`
	Selector string `yaml:"selector" validate:"required_without=Marker,excluded_with=Marker"`
	Attr     string `yaml:"attr"`
	Marker   string `yaml:"marker" validate:"required_without=Selector"`
	Offset   int    `yaml:"offset"`
	Pattern  string `yaml:"pattern"`
	Numeric  bool   `yaml:"numeric"`
}

// Build validates the spec and compiles it into a Field.
func (s FieldSpec) Build() (Field, error) {
	if err := validation.ValidateStruct("FieldSpec", s); err != nil {
		return Field{}, err
	}
	var pattern *regexp.Regexp
	if s.Pattern != "" {
		p, err := regexp.Compile(s.Pattern)
		if err != nil {
			return Field{}, errors.NewInvalidInputError("FieldSpec", fmt.Sprintf("field %s: bad pattern: %v", s.Name, err))
		}
		pattern = p
	}

	f := Field{Name: s.Name, Numeric: s.Numeric}
	if s.Selector != "" {
		f.Extractor = SelectorExtractor{Selector: s.Selector, Attr: s.Attr, Pattern: pattern}
	} else {
		f.Extractor = LineOffsetExtractor{Marker: s.Marker, Offset: s.Offset, Pattern: pattern}
	}
	return f, nil
}

// ProfileOptions configures Profiles.
type ProfileOptions struct {
	URLTemplate string
	Tickers     []string
	Fields      []Field
	// Workers bounds concurrent page fetches (default 4).
	Workers   int
	Logger    *slog.Logger
	Allocator memory.Allocator
}

// Profiles fetches one page per ticker and extracts every field from it.
// The result has a "ticker" column followed by one column per field. A
// field that cannot be extracted is a missing value and is logged; a page
// that cannot be fetched fails the whole call.
func Profiles(ctx context.Context, fetcher source.Fetcher, opts ProfileOptions) (*dataframe.DataFrame, error) {
	const op = "Profiles"
	if !strings.Contains(opts.URLTemplate, TickerPlaceholder) {
		return nil, errors.NewInvalidInputError(op, fmt.Sprintf("url template must contain %s", TickerPlaceholder))
	}
	if len(opts.Fields) == 0 {
		return nil, errors.NewInvalidInputError(op, "no fields given")
	}
	names := []string{"ticker"}
	for _, f := range opts.Fields {
		if f.Extractor == nil {
			return nil, errors.NewInvalidInputError(op, fmt.Sprintf("field %q has no extractor", f.Name))
		}
		names = append(names, f.Name)
	}
	if err := validation.ValidateUniqueNames(op, names...); err != nil {
		return nil, err
	}

	logger := logging.OrDiscard(opts.Logger)
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	pages, err := parallel.ProcessIndexed(ctx, parallel.NewWorkerPool(workers), opts.Tickers,
		func(ctx context.Context, _ int, ticker string) ([]byte, error) {
			return fetcher.Fetch(ctx, strings.ReplaceAll(opts.URLTemplate, TickerPlaceholder, url.PathEscape(ticker)))
		})
	if err != nil {
		return nil, err
	}

	cols := []dataframe.ISeries{series.New("ticker", append([]string{}, opts.Tickers...), opts.Allocator)}
	for _, f := range opts.Fields {
		cols = append(cols, extractColumn(ctx, logger, f, opts.Tickers, pages, opts.Allocator))
	}
	return dataframe.New(cols...), nil
}

func extractColumn(ctx context.Context, logger *slog.Logger, f Field, tickers []string, pages [][]byte, mem memory.Allocator) dataframe.ISeries {
	texts := make([]string, len(tickers))
	numbers := make([]float64, len(tickers))
	valid := make([]bool, len(tickers))

	for i, ticker := range tickers {
		text, err := f.Extractor.Extract(pages[i])
		if err != nil {
			logger.WarnContext(ctx, "field extraction failed", "ticker", ticker, "field", f.Name, "error", err)
			continue
		}
		if !f.Numeric {
			texts[i], valid[i] = text, true
			continue
		}
		n, err := ParseNumber(text)
		if err != nil {
			logger.WarnContext(ctx, "field is not numeric", "ticker", ticker, "field", f.Name, "value", text)
			continue
		}
		numbers[i], valid[i] = n, true
	}

	if f.Numeric {
		return series.NewNullable(f.Name, numbers, valid, mem)
	}
	return series.NewNullable(f.Name, texts, valid, mem)
}

var magnitudes = map[byte]float64{'K': 1e3, 'M': 1e6, 'B': 1e9, 'T': 1e12}

// ParseNumber reads numbers as profile pages print them: thousands
// separators, a leading currency sign, a trailing percent sign (kept as
// the printed number) or a K/M/B/T magnitude suffix.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")

	scale := 1.0
	if n := len(s); n > 1 {
		if m, ok := magnitudes[strings.ToUpper(s[n-1:])[0]]; ok {
			scale = m
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return v * scale, nil
}
