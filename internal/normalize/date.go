// Package normalize turns heterogeneous date strings into orderable,
// joinable YYYYMMDD keys and applies explicit policies to values that fail
// to parse or validate.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paveg/finwrangle/internal/errors"
)

// DefaultLayouts are the date layouts recognized when none are configured,
// tried in order.
var DefaultLayouts = []string{
	"02-01-2006",  // DD-MM-YYYY
	"20060102",    // YYYYMMDD
	"02-Jan-2006", // 06-Mar-2009
	"2-Jan-06",    // 6-Mar-09
	"2006-01-02",  // ISO
	"01/02/2006",  // MM/DD/YYYY
}

// ParseDate parses s with the first matching layout and returns the date as
// a YYYYMMDD integer. A nil layouts slice means DefaultLayouts.
func ParseDate(s string, layouts []string) (int64, error) {
	if layouts == nil {
		layouts = DefaultLayouts
	}
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range layouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				return DateKey(t), nil
			}
		}
	}
	return 0, errors.NewUnparseableDateError("ParseDate", "", -1, s)
}

// DateKey returns t's calendar date as YYYYMMDD.
func DateKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// KeyTime converts a YYYYMMDD key back to a UTC time.
func KeyTime(key int64) (time.Time, error) {
	t, err := time.Parse("20060102", strconv.FormatInt(key, 10))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %d: %w", key, err)
	}
	return t, nil
}
