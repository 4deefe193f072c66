package dataframe

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paveg/finwrangle/internal/errors"
)

// TruncationPolicy decides what happens to key values that are not present
// in every input of JoinAll.
type TruncationPolicy int

const (
	// TruncateToCommon keeps only keys present in every input (inner joins).
	TruncateToCommon TruncationPolicy = iota
	// KeepAll keeps every key, filling absent inputs with missing values
	// (full outer joins).
	KeepAll
)

// String returns the configuration name of the policy.
func (p TruncationPolicy) String() string {
	if p == KeepAll {
		return "keep_all"
	}
	return "truncate_to_common"
}

// JoinAllOptions configures JoinAll.
type JoinAllOptions struct {
	Keys   []string // Key columns present in every input
	Policy TruncationPolicy
	// Suffixes[i] disambiguates colliding non-key columns of input i (i > 0).
	// Defaults to "_<i>".
	Suffixes []string
	// RequireOverlap fails the join with a JoinKeyMismatch error when an
	// input shares no key with the inputs joined before it.
	RequireOverlap bool
	// Names[i] labels input i in errors. Defaults to "input<i>".
	Names []string
}

// InputReport describes what one JoinAll input contributed.
type InputReport struct {
	Index       int
	RowsIn      int
	RowsDropped int // Input rows whose key is missing or absent from the result
}

// MultiJoinReport makes truncation across a multi-table join visible.
type MultiJoinReport struct {
	Inputs  []InputReport
	RowsOut int
}

// RowsDropped returns the total number of input rows left out of the result.
func (r MultiJoinReport) RowsDropped() int {
	total := 0
	for _, in := range r.Inputs {
		total += in.RowsDropped
	}
	return total
}

// JoinAll joins frames pairwise, left to right, on the same key columns.
func JoinAll(frames []*DataFrame, opts JoinAllOptions) (*DataFrame, MultiJoinReport, error) {
	var report MultiJoinReport
	if len(frames) == 0 {
		return nil, report, errors.NewInvalidInputError("JoinAll", "no tables to join")
	}
	if len(opts.Keys) == 0 {
		return nil, report, errors.NewInvalidInputError("JoinAll", "no key columns given")
	}
	for _, f := range frames {
		if err := validateJoinKeys(frames[0], f, opts.Keys, opts.Keys); err != nil {
			return nil, report, err
		}
	}

	joinType := InnerJoin
	if opts.Policy == KeepAll {
		joinType = FullOuterJoin
	}

	result, err := frames[0].Select(frames[0].order...)
	if err != nil {
		return nil, report, err
	}
	for i := 1; i < len(frames); i++ {
		suffix := fmt.Sprintf("_%d", i)
		if i < len(opts.Suffixes) && opts.Suffixes[i] != "" {
			suffix = opts.Suffixes[i]
		}
		next, err := result.Join(frames[i], &JoinOptions{
			Type:           joinType,
			LeftKeys:       opts.Keys,
			RightKeys:      opts.Keys,
			Suffix:         suffix,
			RequireOverlap: opts.RequireOverlap,
		})
		result.Release()
		if stderrors.Is(err, errors.ErrJoinKeyMismatch) {
			return nil, report, opts.mismatch(i)
		}
		if err != nil {
			return nil, report, err
		}
		result = next
	}

	resultIdx := newKeyIndex(columnsOf(result, opts.Keys), false)
	var d xxhash.Digest
	for i, f := range frames {
		cols := columnsOf(f, opts.Keys)
		dropped := 0
		for row := 0; row < f.Len(); row++ {
			if resultIdx.lookup(&d, cols, row) < 0 {
				dropped++
			}
		}
		report.Inputs = append(report.Inputs, InputReport{Index: i, RowsIn: f.Len(), RowsDropped: dropped})
	}
	report.RowsOut = result.Len()
	return result, report, nil
}

func (o JoinAllOptions) name(i int) string {
	if i < len(o.Names) && o.Names[i] != "" {
		return o.Names[i]
	}
	return fmt.Sprintf("input%d", i)
}

// mismatch reports that input i shares no key with inputs 0..i-1.
func (o JoinAllOptions) mismatch(i int) error {
	earlier := make([]string, i)
	for k := range earlier {
		earlier[k] = o.name(k)
	}
	left := make([]string, len(o.Keys))
	right := make([]string, len(o.Keys))
	for k, key := range o.Keys {
		left[k] = strings.Join(earlier, "+") + "." + key
		right[k] = o.name(i) + "." + key
	}
	return errors.NewJoinKeyMismatchError("JoinAll", left, right)
}
