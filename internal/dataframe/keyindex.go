package dataframe

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/paveg/finwrangle/internal/series"
)

const (
	tagNull    byte = 0
	tagPresent byte = 1
)

// keyIndex groups the rows of a table by the values of its key columns.
// Rows are bucketed by an xxhash of the composite key; each bucket holds
// group ids whose representative row is compared in full on lookup.
type keyIndex struct {
	cols    []ISeries
	groups  [][]int          // group id -> row indices in input order
	buckets map[uint64][]int // key hash -> group ids
	nulls   bool             // rows with missing key values form groups
}

// newKeyIndex indexes every row of cols. With nulls false, rows with a
// missing key value are left out of the index, so they never match.
func newKeyIndex(cols []ISeries, nulls bool) *keyIndex {
	idx := &keyIndex{
		cols:    cols,
		buckets: make(map[uint64][]int),
		nulls:   nulls,
	}
	if len(cols) == 0 {
		return idx
	}

	var d xxhash.Digest
	for row := 0; row < cols[0].Len(); row++ {
		if !nulls && hasNullKey(cols, row) {
			continue
		}
		h := hashKey(&d, cols, row)
		gid, found := idx.find(h, cols, row)
		if !found {
			gid = len(idx.groups)
			idx.groups = append(idx.groups, nil)
			idx.buckets[h] = append(idx.buckets[h], gid)
		}
		idx.groups[gid] = append(idx.groups[gid], row)
	}
	return idx
}

// lookup returns the group id matching row of probe, or -1.
func (idx *keyIndex) lookup(d *xxhash.Digest, probe []ISeries, row int) int {
	if !idx.nulls && hasNullKey(probe, row) {
		return -1
	}
	gid, found := idx.find(hashKey(d, probe, row), probe, row)
	if !found {
		return -1
	}
	return gid
}

func (idx *keyIndex) find(h uint64, probe []ISeries, row int) (int, bool) {
	for _, gid := range idx.buckets[h] {
		if keysEqual(idx.cols, idx.groups[gid][0], probe, row) {
			return gid, true
		}
	}
	return 0, false
}

func hasNullKey(cols []ISeries, row int) bool {
	for _, s := range cols {
		if s.IsNull(row) {
			return true
		}
	}
	return false
}

// keysEqual compares composite keys; two missing values are equal here,
// which only matters when the index groups nulls.
func keysEqual(a []ISeries, i int, b []ISeries, j int) bool {
	for k := range a {
		an, bn := a[k].IsNull(i), b[k].IsNull(j)
		if an || bn {
			if an != bn {
				return false
			}
			continue
		}
		if !series.EqualAt(a[k], i, b[k], j) {
			return false
		}
	}
	return true
}

// hashKey hashes the typed key values of row. Every value is tagged and
// strings are length-prefixed so distinct composite keys never share input.
func hashKey(d *xxhash.Digest, cols []ISeries, row int) uint64 {
	d.Reset()
	var buf [9]byte
	for _, s := range cols {
		v, ok := series.ValueAt(s, row)
		if !ok {
			_, _ = d.Write([]byte{tagNull})
			continue
		}
		buf[0] = tagPresent
		switch x := v.(type) {
		case string:
			binary.LittleEndian.PutUint64(buf[1:], uint64(len(x)))
			_, _ = d.Write(buf[:])
			_, _ = d.WriteString(x)
		case int64:
			binary.LittleEndian.PutUint64(buf[1:], uint64(x))
			_, _ = d.Write(buf[:])
		case float64:
			if x == 0 {
				x = 0 // -0 and +0 compare equal
			}
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(x))
			_, _ = d.Write(buf[:])
		case bool:
			buf[1] = 0
			if x {
				buf[1] = 1
			}
			_, _ = d.Write(buf[:2])
		}
	}
	return d.Sum64()
}
