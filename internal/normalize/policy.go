package normalize

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a row whose value cannot be used.
type Policy int

const (
	// PolicyDefault selects the stage's default: DropRow for date keys,
	// MarkMissing for values.
	PolicyDefault Policy = iota
	DropRow
	MarkMissing
	UseSentinel
	Abort
)

var policyNames = map[Policy]string{
	PolicyDefault: "default",
	DropRow:       "drop",
	MarkMissing:   "missing",
	UseSentinel:   "sentinel",
	Abort:         "abort",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy reads a policy name as written in config and recipe files.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return PolicyDefault, nil
	case "drop", "drop_row":
		return DropRow, nil
	case "missing", "mark_missing":
		return MarkMissing, nil
	case "sentinel", "use_sentinel":
		return UseSentinel, nil
	case "abort":
		return Abort, nil
	default:
		return PolicyDefault, fmt.Errorf("unknown policy %q (want drop, missing, sentinel or abort)", s)
	}
}

func (p Policy) or(def Policy) Policy {
	if p == PolicyDefault {
		return def
	}
	return p
}

// Report summarizes a normalization pass.
type Report struct {
	Column         string
	Seen           int
	Dropped        int
	MarkedMissing  int
	SentinelFilled int
	// FirstInvalid is the first offending value and FirstInvalidRow its
	// one-based row, zero when every value was usable.
	FirstInvalid    string
	FirstInvalidRow int
}

// Invalid is the number of rows the policy had to act on.
func (r Report) Invalid() int {
	return r.Dropped + r.MarkedMissing + r.SentinelFilled
}

func (r *Report) record(p Policy, row int, value string) {
	if r.FirstInvalidRow == 0 {
		r.FirstInvalid = value
		r.FirstInvalidRow = row + 1
	}
	switch p {
	case DropRow:
		r.Dropped++
	case MarkMissing:
		r.MarkedMissing++
	case UseSentinel:
		r.SentinelFilled++
	}
}
