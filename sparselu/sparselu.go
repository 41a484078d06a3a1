// Package sparselu provides a serial scalar sparse LU with threshold
// partial pivoting. Columns are eliminated in natural order; the pivot
// row keeps the diagonal whenever its magnitude is within RelThreshold
// of the best candidate in the column, and otherwise the largest entry
// wins, ties to the lowest row. Factor and Solve are separate so one
// factorization serves many right-hand sides.
package sparselu

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrSingular = errors.New("sparselu: matrix is singular")

const (
	// DefaultRelThreshold accepts the diagonal pivot when it is within
	// this factor of the largest candidate in its column.
	DefaultRelThreshold = 1e-3
	// DefaultAbsThreshold is the magnitude below which a whole pivot
	// column counts as numerically zero.
	DefaultAbsThreshold = 1e-20
)

type lentry struct {
	row int
	f   float64
}

type uentry struct {
	col int
	v   float64
}

// LU assembles a sparse n-by-n system and factors it in place. Assembly
// entries are consumed by Factor; build a new LU to refactor a changed
// pattern or changed values.
type LU struct {
	n      int
	relTol float64
	absTol float64
	rows   []map[int]float64

	perm     []int // perm[k] = pivot row eliminated at step k
	lsteps   [][]lentry
	urows    [][]uentry
	factored bool
}

func New(n int) *LU {
	m := &LU{
		n:      n,
		relTol: DefaultRelThreshold,
		absTol: DefaultAbsThreshold,
		rows:   make([]map[int]float64, n),
	}
	for i := range m.rows {
		m.rows[i] = make(map[int]float64)
	}
	return m
}

// N returns the system dimension.
func (m *LU) N() int { return m.n }

// SetThresholds overrides the pivot selection thresholds.
func (m *LU) SetThresholds(rel, abs float64) {
	m.relTol, m.absTol = rel, abs
}

// Add accumulates v into entry (i,j).
func (m *LU) Add(i, j int, v float64) {
	m.rows[i][j] += v
}

// Set overwrites entry (i,j).
func (m *LU) Set(i, j int, v float64) {
	m.rows[i][j] = v
}

// At reads an assembled entry. Only meaningful before Factor.
func (m *LU) At(i, j int) float64 {
	return m.rows[i][j]
}

// Factor eliminates the assembled system into L and U. A structurally
// empty row, an empty pivot column, or a column whose best pivot falls
// below the absolute threshold is singular and reported with its index.
func (m *LU) Factor() error {
	if m.factored {
		return fmt.Errorf("sparselu: factor called twice")
	}
	for i, row := range m.rows {
		if len(row) == 0 {
			return fmt.Errorf("%w: row %d has no entries", ErrSingular, i)
		}
	}
	var (
		n         = m.n
		remaining = make([]bool, n)
	)
	m.perm = make([]int, n)
	m.lsteps = make([][]lentry, n)
	m.urows = make([][]uentry, n)
	for i := range remaining {
		remaining[i] = true
	}
	for k := 0; k < n; k++ {
		// Pivot search over column k of the remaining rows.
		var (
			piv    = -1
			pmax   float64
			diagOK bool
			diagV  float64
		)
		for r := 0; r < n; r++ {
			if !remaining[r] {
				continue
			}
			v, ok := m.rows[r][k]
			if !ok {
				continue
			}
			if av := math.Abs(v); av > pmax {
				piv, pmax = r, av
			}
			if r == k {
				diagOK, diagV = true, math.Abs(v)
			}
		}
		if piv < 0 || pmax <= m.absTol {
			return fmt.Errorf("%w: column %d has no usable pivot (max %g)", ErrSingular, k, pmax)
		}
		if diagOK && diagV >= m.relTol*pmax {
			piv = k
		}
		remaining[piv] = false
		m.perm[k] = piv
		pval := m.rows[piv][k]
		// Eliminate column k from the remaining rows, recording the
		// multipliers for Solve.
		for r := 0; r < n; r++ {
			if !remaining[r] {
				continue
			}
			a, ok := m.rows[r][k]
			if !ok {
				continue
			}
			f := a / pval
			delete(m.rows[r], k)
			for j, v := range m.rows[piv] {
				if j > k {
					m.rows[r][j] -= f * v
				}
			}
			m.lsteps[k] = append(m.lsteps[k], lentry{row: r, f: f})
		}
		sort.Slice(m.lsteps[k], func(a, b int) bool { return m.lsteps[k][a].row < m.lsteps[k][b].row })
		urow := make([]uentry, 0, len(m.rows[piv]))
		for j, v := range m.rows[piv] {
			urow = append(urow, uentry{col: j, v: v})
		}
		sort.Slice(urow, func(a, b int) bool { return urow[a].col < urow[b].col })
		m.urows[k] = urow
		m.rows[piv] = nil
	}
	m.rows = nil
	m.factored = true
	return nil
}

// Factored reports whether Factor has completed.
func (m *LU) Factored() bool { return m.factored }

// Solve returns x with A*x = b. Callable any number of times after
// Factor; b is untouched.
func (m *LU) Solve(b []float64) ([]float64, error) {
	if !m.factored {
		return nil, fmt.Errorf("sparselu: solve before factor")
	}
	if len(b) != m.n {
		return nil, fmt.Errorf("sparselu: rhs length %d, want %d", len(b), m.n)
	}
	var (
		n = m.n
		c = append([]float64(nil), b...)
		x = make([]float64, n)
	)
	// Forward: replay the eliminations on the right-hand side.
	for k := 0; k < n; k++ {
		ck := c[m.perm[k]]
		if ck == 0 {
			continue
		}
		for _, e := range m.lsteps[k] {
			c[e.row] -= e.f * ck
		}
	}
	// Backward: columns were eliminated in natural order, so step k
	// solved for x[k].
	for k := n - 1; k >= 0; k-- {
		var (
			urow = m.urows[k]
			s    = c[m.perm[k]]
			d    float64
		)
		for _, e := range urow {
			switch {
			case e.col == k:
				d = e.v
			case e.col > k:
				s -= e.v * x[e.col]
			}
		}
		x[k] = s / d
	}
	return x, nil
}
