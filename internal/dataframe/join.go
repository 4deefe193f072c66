package dataframe

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
	"github.com/paveg/finwrangle/internal/validation"
)

// JoinType represents the type of join operation
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullOuterJoin
)

// String returns the lower-case join type name.
func (t JoinType) String() string {
	switch t {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case FullOuterJoin:
		return "outer"
	default:
		return fmt.Sprintf("JoinType(%d)", int(t))
	}
}

// ParseJoinType maps a configuration value to a JoinType.
func ParseJoinType(s string) (JoinType, error) {
	switch s {
	case "", "inner":
		return InnerJoin, nil
	case "left":
		return LeftJoin, nil
	case "right":
		return RightJoin, nil
	case "outer", "full", "full_outer":
		return FullOuterJoin, nil
	default:
		return InnerJoin, errors.NewInvalidInputError("ParseJoinType", fmt.Sprintf("unknown join type %q", s))
	}
}

// DefaultJoinSuffix is appended to right-hand non-key columns whose names
// collide with a left-hand column.
const DefaultJoinSuffix = "_right"

// JoinOptions specifies parameters for join operations
type JoinOptions struct {
	Type      JoinType
	LeftKey   string   // Single join key for left DataFrame
	RightKey  string   // Single join key for right DataFrame
	LeftKeys  []string // Multiple join keys for left DataFrame
	RightKeys []string // Multiple join keys for right DataFrame
	Suffix    string   // Collision suffix, DefaultJoinSuffix when empty
	// RequireOverlap turns an empty key intersection into a JoinKeyMismatch
	// error instead of an empty result.
	RequireOverlap bool
}

// Join combines df and right on equal key values.
//
// The result holds the key columns once (named after the left keys and
// coalesced from either side for outer joins), then the left non-key
// columns, then the right non-key columns. Duplicate keys produce one row
// per matching pair. Missing key values never match. Rows follow left order,
// each left row followed by its matches in right order; unmatched right
// rows of right and full outer joins come last in right order.
func (df *DataFrame) Join(right *DataFrame, options *JoinOptions) (*DataFrame, error) {
	if options == nil {
		return nil, errors.NewInvalidInputError("Join", "nil join options")
	}
	leftKeys, rightKeys := normalizeJoinKeys(options)
	if err := validateJoinKeys(df, right, leftKeys, rightKeys); err != nil {
		return nil, err
	}

	leftCols := columnsOf(df, leftKeys)
	rightCols := columnsOf(right, rightKeys)
	idx := newKeyIndex(rightCols, false)

	plan := planJoin(df.Len(), right.Len(), leftCols, idx, options.Type)
	if plan.overlap == 0 && options.RequireOverlap {
		return nil, errors.NewJoinKeyMismatchError("Join", leftKeys, rightKeys)
	}

	suffix := options.Suffix
	if suffix == "" {
		suffix = DefaultJoinSuffix
	}
	return buildJoinResult(df, right, leftKeys, rightKeys, plan, options.Type, suffix), nil
}

// KeyOverlap returns the number of distinct non-missing key values present
// in both tables.
func KeyOverlap(left, right *DataFrame, leftKeys, rightKeys []string) (int, error) {
	if err := validateJoinKeys(left, right, leftKeys, rightKeys); err != nil {
		return 0, err
	}
	plan := planJoin(left.Len(), right.Len(), columnsOf(left, leftKeys), newKeyIndex(columnsOf(right, rightKeys), false), InnerJoin)
	return plan.overlap, nil
}

// normalizeJoinKeys extracts the actual keys to use for joining
func normalizeJoinKeys(options *JoinOptions) ([]string, []string) {
	if len(options.LeftKeys) > 0 || len(options.RightKeys) > 0 {
		return options.LeftKeys, options.RightKeys
	}
	return []string{options.LeftKey}, []string{options.RightKey}
}

// validateJoinKeys ensures all join keys exist in both DataFrames with
// matching types.
func validateJoinKeys(left, right *DataFrame, leftKeys, rightKeys []string) error {
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return errors.NewInvalidInputError("Join",
			fmt.Sprintf("number of left keys (%d) must match number of right keys (%d)", len(leftKeys), len(rightKeys)))
	}
	if err := validation.ValidateColumns(left, "Join", leftKeys...); err != nil {
		return err
	}
	if err := validation.ValidateColumns(right, "Join", rightKeys...); err != nil {
		return err
	}
	if err := validation.ValidateUniqueNames("Join", leftKeys...); err != nil {
		return err
	}
	for i := range leftKeys {
		lt, _ := left.ColumnType(leftKeys[i])
		rt, _ := right.ColumnType(rightKeys[i])
		if lt.ID() != rt.ID() {
			return errors.NewInvalidInputError("Join",
				fmt.Sprintf("key %s (%s) and key %s (%s) have different types", leftKeys[i], lt, rightKeys[i], rt))
		}
	}
	return nil
}

func columnsOf(df *DataFrame, names []string) []ISeries {
	cols := make([]ISeries, len(names))
	for i, name := range names {
		cols[i] = df.columns[name]
	}
	return cols
}

// joinPlan holds parallel row index vectors; -1 marks a missing side.
type joinPlan struct {
	leftIndices  []int
	rightIndices []int
	overlap      int // distinct keys present on both sides
}

func planJoin(leftLen, rightLen int, leftCols []ISeries, idx *keyIndex, joinType JoinType) joinPlan {
	var plan joinPlan
	var d xxhash.Digest
	matchedGroups := make([]bool, len(idx.groups))

	for i := 0; i < leftLen; i++ {
		gid := idx.lookup(&d, leftCols, i)
		if gid < 0 {
			if joinType == LeftJoin || joinType == FullOuterJoin {
				plan.leftIndices = append(plan.leftIndices, i)
				plan.rightIndices = append(plan.rightIndices, -1)
			}
			continue
		}
		if !matchedGroups[gid] {
			matchedGroups[gid] = true
			plan.overlap++
		}
		for _, rightIdx := range idx.groups[gid] {
			plan.leftIndices = append(plan.leftIndices, i)
			plan.rightIndices = append(plan.rightIndices, rightIdx)
		}
	}

	if joinType == RightJoin || joinType == FullOuterJoin {
		matchedRows := make([]bool, rightLen)
		for gid, rows := range idx.groups {
			if matchedGroups[gid] {
				for _, r := range rows {
					matchedRows[r] = true
				}
			}
		}
		for r := 0; r < rightLen; r++ {
			if !matchedRows[r] {
				plan.leftIndices = append(plan.leftIndices, -1)
				plan.rightIndices = append(plan.rightIndices, r)
			}
		}
	}
	return plan
}

func buildJoinResult(
	left, right *DataFrame, leftKeys, rightKeys []string, plan joinPlan, joinType JoinType, suffix string,
) *DataFrame {
	mem := memory.NewGoAllocator()
	cols := make([]ISeries, 0, left.Width()+right.Width())
	taken := make(map[string]bool, left.Width()+right.Width())

	for i, name := range leftKeys {
		var key ISeries
		switch joinType {
		case InnerJoin, LeftJoin:
			key = left.columns[name].Gather(plan.leftIndices, mem)
		default:
			key = coalesceColumn(name, left.columns[name], plan.leftIndices,
				right.columns[rightKeys[i]], plan.rightIndices, mem)
		}
		cols = append(cols, key)
		taken[name] = true
	}

	leftKeySet := toSet(leftKeys)
	for _, name := range left.order {
		if leftKeySet[name] {
			continue
		}
		cols = append(cols, left.columns[name].Gather(plan.leftIndices, mem))
		taken[name] = true
	}

	rightKeySet := toSet(rightKeys)
	for _, name := range right.order {
		if rightKeySet[name] {
			continue
		}
		outName := name
		for taken[outName] {
			outName += suffix
		}
		gathered := right.columns[name].Gather(plan.rightIndices, mem)
		if outName != name {
			renamed := gathered.Rename(outName)
			gathered.Release()
			gathered = renamed
		}
		cols = append(cols, gathered)
		taken[outName] = true
	}

	return New(cols...)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// coalesceColumn gathers l at li, falling back to r at ri where the left
// side is missing. Both columns have the same element type.
func coalesceColumn(name string, l ISeries, li []int, r ISeries, ri []int, mem memory.Allocator) ISeries {
	switch typed := l.(type) {
	case *series.Series[string]:
		return coalesce(name, typed, li, r.(*series.Series[string]), ri, mem)
	case *series.Series[int64]:
		return coalesce(name, typed, li, r.(*series.Series[int64]), ri, mem)
	case *series.Series[float64]:
		return coalesce(name, typed, li, r.(*series.Series[float64]), ri, mem)
	case *series.Series[bool]:
		return coalesce(name, typed, li, r.(*series.Series[bool]), ri, mem)
	default:
		panic(fmt.Sprintf("coalesce: unsupported column type %s", l.DataType()))
	}
}

func coalesce[T series.Element](
	name string, l *series.Series[T], li []int, r *series.Series[T], ri []int, mem memory.Allocator,
) ISeries {
	values := make([]T, len(li))
	valid := make([]bool, len(li))
	for k := range li {
		if v, ok := l.Get(li[k]); ok {
			values[k], valid[k] = v, true
		} else if v, ok := r.Get(ri[k]); ok {
			values[k], valid[k] = v, true
		}
	}
	return series.NewNullable(name, values, valid, mem)
}
