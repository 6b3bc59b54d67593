// Package shard splits an id range into contiguous, disjoint worker intervals.
package shard

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Range is an inclusive id interval. Only a Range with Bounded set
// constrains ids; the zero Range matches every id. Build bounded ranges
// with Between or Partition.
type Range struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Bounded bool  `json:"bounded"`
}

// Between returns the bounded interval [min,max].
func Between(min, max int64) Range {
	return Range{Min: min, Max: max, Bounded: true}
}

// Unbounded reports whether r places no constraint on ids.
func (r Range) Unbounded() bool {
	return !r.Bounded
}

// Contains reports whether id falls inside r.
func (r Range) Contains(id int64) bool {
	if r.Unbounded() {
		return true
	}
	return id >= r.Min && id <= r.Max
}

// Bounds returns the SQL bounds for r, widening an unbounded range.
func (r Range) Bounds() (int64, int64) {
	if r.Unbounded() {
		return 0, 1<<63 - 1
	}
	return r.Min, r.Max
}

// Size returns the number of ids in a bounded r.
func (r Range) Size() int64 {
	if r.Unbounded() || r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min + 1
}

func (r Range) String() string {
	if r.Unbounded() {
		return "[*]"
	}
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// Partition splits [min,max] into at most n contiguous intervals of
// chunk = ceil((max-min+1)/n) ids. The last interval is clipped to max and
// shards that would start past max are omitted.
func Partition(min, max int64, n int) ([]Range, error) {
	if n < 1 {
		return nil, eris.Errorf("shard: count must be >= 1, got %d", n)
	}
	if max < min {
		return nil, eris.Errorf("shard: max %d < min %d", max, min)
	}
	total := max - min + 1
	chunk := (total + int64(n) - 1) / int64(n)

	out := make([]Range, 0, n)
	for i := 0; i < n; i++ {
		lo := min + int64(i)*chunk
		if lo > max {
			break
		}
		hi := lo + chunk - 1
		if hi > max {
			hi = max
		}
		out = append(out, Between(lo, hi))
	}
	return out, nil
}

// For returns the interval of shard index i (0-based) out of n.
func For(min, max int64, n, i int) (Range, error) {
	parts, err := Partition(min, max, n)
	if err != nil {
		return Range{}, err
	}
	if i < 0 || i >= len(parts) {
		return Range{}, eris.Errorf("shard: index %d out of range (have %d shards)", i, len(parts))
	}
	return parts[i], nil
}
