package bpmat

import (
	"fmt"
	"sort"
)

// VarMap fixes the ownership of global block indices: rank r owns the
// contiguous range [ranges[r], ranges[r+1]). The map is immutable after
// construction and identical on every rank.
type VarMap struct {
	size   int
	ranges []int
}

// NewVarMap splits nblocks evenly over size ranks, spreading the
// remainder over the low ranks so no two ranks differ by more than one
// block.
func NewVarMap(size, nblocks int) (*VarMap, error) {
	if size < 1 || nblocks < 0 {
		return nil, fmt.Errorf("%w: %d blocks over %d ranks", ErrDimensionMismatch, nblocks, size)
	}
	var (
		base   = nblocks / size
		rem    = nblocks % size
		ranges = make([]int, size+1)
	)
	for r := 0; r < size; r++ {
		n := base
		if r < rem {
			n++
		}
		ranges[r+1] = ranges[r] + n
	}
	return &VarMap{size: size, ranges: ranges}, nil
}

// NewVarMapFromCounts builds the map from explicit per-rank block counts,
// as produced by a graph partition.
func NewVarMapFromCounts(counts []int) (*VarMap, error) {
	if len(counts) < 1 {
		return nil, fmt.Errorf("%w: empty rank counts", ErrDimensionMismatch)
	}
	ranges := make([]int, len(counts)+1)
	for r, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative count %d at rank %d", ErrDimensionMismatch, n, r)
		}
		ranges[r+1] = ranges[r] + n
	}
	return &VarMap{size: len(counts), ranges: ranges}, nil
}

// Size returns the number of ranks the map distributes over.
func (m *VarMap) Size() int { return m.size }

// GlobalSize returns the total number of global blocks.
func (m *VarMap) GlobalSize() int { return m.ranges[m.size] }

// OwnedRange returns rank's half-open global block range [lo, hi).
func (m *VarMap) OwnedRange(rank int) (lo, hi int) {
	return m.ranges[rank], m.ranges[rank+1]
}

// NumOwned returns the number of blocks rank owns.
func (m *VarMap) NumOwned(rank int) int {
	return m.ranges[rank+1] - m.ranges[rank]
}

// Owner returns the rank owning global block g, or -1 if g is out of
// range.
func (m *VarMap) Owner(g int) int {
	if g < 0 || g >= m.GlobalSize() {
		return -1
	}
	return sort.SearchInts(m.ranges, g+1) - 1
}

// Owns reports whether rank owns global block g.
func (m *VarMap) Owns(rank, g int) bool {
	return g >= m.ranges[rank] && g < m.ranges[rank+1]
}

// Ranges returns the cumulative ownership offsets, length Size()+1.
func (m *VarMap) Ranges() []int { return m.ranges }
