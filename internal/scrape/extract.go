// Package scrape extracts single values from HTML profile pages and
// assembles them into a table, one row per ticker.
package scrape

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/paveg/finwrangle/internal/errors"
)

// Extractor pulls one value out of a page.
type Extractor interface {
	Extract(page []byte) (string, error)
}

// LineOffsetExtractor finds the first line containing Marker and reads the
// line Offset lines below it. Markup is stripped from that line; when
// Pattern is set, its first capture group (or whole match) is the value.
type LineOffsetExtractor struct {
	Marker  string
	Offset  int
	Pattern *regexp.Regexp
}

func (e LineOffsetExtractor) Extract(page []byte) (string, error) {
	const op = "LineOffsetExtract"
	if e.Marker == "" {
		return "", errors.NewInvalidInputError(op, "empty marker")
	}

	lines := strings.Split(string(page), "\n")
	for i, line := range lines {
		if !strings.Contains(line, e.Marker) {
			continue
		}
		target := i + e.Offset
		if target < 0 || target >= len(lines) {
			return "", errors.NewParseError(op,
				fmt.Sprintf("marker %q found on line %d but offset %d is outside the page", e.Marker, i+1, e.Offset), nil)
		}
		text, err := stripMarkup(lines[target])
		if err != nil {
			return "", errors.NewParseError(op, "reading target line", err)
		}
		return applyPattern(op, e.Pattern, text)
	}
	return "", errors.NewParseError(op, fmt.Sprintf("marker %q not found", e.Marker), nil)
}

func stripMarkup(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	return collapseSpace(doc.Text()), nil
}

// SelectorExtractor reads the first element matching a CSS selector: its
// text, or the named attribute when Attr is set.
type SelectorExtractor struct {
	Selector string
	Attr     string
	Pattern  *regexp.Regexp
}

func (e SelectorExtractor) Extract(page []byte) (string, error) {
	const op = "SelectorExtract"
	if e.Selector == "" {
		return "", errors.NewInvalidInputError(op, "empty selector")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", errors.NewParseError(op, "parsing page", err)
	}
	sel := doc.Find(e.Selector).First()
	if sel.Length() == 0 {
		return "", errors.NewParseError(op, fmt.Sprintf("selector %q matched nothing", e.Selector), nil)
	}

	var text string
	if e.Attr != "" {
		v, ok := sel.Attr(e.Attr)
		if !ok {
			return "", errors.NewParseError(op, fmt.Sprintf("selector %q has no attribute %q", e.Selector, e.Attr), nil)
		}
		text = strings.TrimSpace(v)
	} else {
		text = collapseSpace(sel.Text())
	}
	return applyPattern(op, e.Pattern, text)
}

func applyPattern(op string, pattern *regexp.Regexp, text string) (string, error) {
	if pattern == nil {
		if text == "" {
			return "", errors.NewParseError(op, "extracted value is empty", nil)
		}
		return text, nil
	}
	m := pattern.FindStringSubmatch(text)
	switch {
	case m == nil:
		return "", errors.NewParseError(op, fmt.Sprintf("pattern %q does not match %q", pattern, text), nil)
	case len(m) > 1:
		return m[1], nil
	default:
		return m[0], nil
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
