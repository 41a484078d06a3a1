package bpmat

import (
	"container/heap"
	"fmt"
)

// levEntry tracks one fill candidate during the symbolic pass.
type levEntry struct {
	col int
	lev int
}

type colHeap []int

func (h colHeap) Len() int            { return len(h) }
func (h colHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h colHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *colHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *colHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// NewFactorMat builds the zeroed factor matrix for a: the same block
// size over the level-of-fill pattern of a block LU. levFill is the
// ILU(k) level cap; a negative levFill admits every fill entry, giving
// the complete pattern an exact factorization needs. Diagonal blocks are
// added to the pattern when a lacks them, so a structurally missing
// diagonal surfaces as a numeric singularity at Factor time rather than
// here.
//
// The pattern is computed once; refresh the values with CopyValues and
// refactor as often as the numbers change.
func NewFactorMat(a *Mat, levFill int) (*Mat, error) {
	if a.nbrows != a.nbcols {
		return nil, fmt.Errorf("%w: factor of %d-by-%d block matrix",
			ErrDimensionMismatch, a.nbrows, a.nbcols)
	}
	var (
		nb   = a.nbrows
		rows = make([][]levEntry, nb)
		lev  = make(map[int]int)
		pend colHeap
	)
	for i := 0; i < nb; i++ {
		for k := range lev {
			delete(lev, k)
		}
		pend = pend[:0]
		for p := a.rowp[i]; p < a.rowp[i+1]; p++ {
			j := a.cols[p]
			lev[j] = 0
			if j < i {
				pend = append(pend, j)
			}
		}
		if _, ok := lev[i]; !ok {
			lev[i] = 0
		}
		heap.Init(&pend)
		// Consume eliminated rows in ascending column order, including
		// fill discovered mid-pass. Ascending order means every level
		// improvement to column k lands before k pops.
		for pend.Len() > 0 {
			k := heap.Pop(&pend).(int)
			lik := lev[k]
			for _, e := range rows[k] {
				if e.col <= k {
					continue
				}
				nl := lik + e.lev + 1
				if cur, ok := lev[e.col]; ok {
					if nl < cur {
						lev[e.col] = nl
					}
					continue
				}
				if levFill >= 0 && nl > levFill {
					continue
				}
				lev[e.col] = nl
				if e.col < i {
					heap.Push(&pend, e.col)
				}
			}
		}
		row := make([]levEntry, 0, len(lev))
		for j, l := range lev {
			row = append(row, levEntry{col: j, lev: l})
		}
		sortLevEntries(row)
		rows[i] = row
	}

	var (
		rowp = make([]int, nb+1)
		nnz  int
	)
	for i, row := range rows {
		nnz += len(row)
		rowp[i+1] = nnz
	}
	cols := make([]int, 0, nnz)
	for _, row := range rows {
		for _, e := range row {
			cols = append(cols, e.col)
		}
	}
	f, err := NewMat(a.bs, nb, nb, rowp, cols)
	if err != nil {
		return nil, err
	}
	f.pivotTol = a.pivotTol
	return f, nil
}

func sortLevEntries(row []levEntry) {
	// Insertion sort; factor rows stay short.
	for i := 1; i < len(row); i++ {
		e := row[i]
		j := i - 1
		for j >= 0 && row[j].col > e.col {
			row[j+1] = row[j]
			j--
		}
		row[j+1] = e
	}
}

// CopyValues overwrites this matrix's values with a's. The receiver's
// pattern must contain every entry of a; entries without a source are
// zeroed, which is how a factor matrix is refreshed before Factor.
func (m *Mat) CopyValues(a *Mat) error {
	if m.bs != a.bs || m.nbrows != a.nbrows || m.nbcols != a.nbcols {
		return fmt.Errorf("%w: copy %d-by-%d bs=%d into %d-by-%d bs=%d",
			ErrDimensionMismatch, a.nbrows, a.nbcols, a.bs, m.nbrows, m.nbcols, m.bs)
	}
	bb := m.bs * m.bs
	for i := range m.vals {
		m.vals[i] = 0
	}
	for i := 0; i < a.nbrows; i++ {
		mp := m.rowp[i]
		for p := a.rowp[i]; p < a.rowp[i+1]; p++ {
			j := a.cols[p]
			for mp < m.rowp[i+1] && m.cols[mp] < j {
				mp++
			}
			if mp >= m.rowp[i+1] || m.cols[mp] != j {
				return fmt.Errorf("%w: source block (%d,%d) missing from factor pattern",
					ErrStructuralMismatch, i, j)
			}
			copy(m.vals[mp*bb:(mp+1)*bb], a.vals[p*bb:(p+1)*bb])
		}
	}
	m.factored = false
	return nil
}
