// Package bpmat implements the distributed block-sparse linear algebra
// for finite-element analysis: per-rank ownership maps, vectors with
// ghost exchange, block compressed-sparse-row matrices with per-size
// kernels, boundary-condition enforcement, and the Schur-complement
// factorization pipeline built on top of them.
package bpmat

import (
	"fmt"
	"sort"
)

// Supported block sizes. Each has a specialized kernel set; the generic
// path covers the same sizes and serves as the reference in tests.
var supportedBlockSizes = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 8: true}

// defaultPivotTol is the relative threshold below which a diagonal block
// pivot is declared singular during factorization.
const defaultPivotTol = 1e-12

// Mat is a serial block compressed-sparse-row matrix. The nonzero block
// pattern is fixed at construction; values are accumulated into it and a
// target outside the pattern is a structural error. Each nonzero is a
// dense bs-by-bs row-major block.
//
// A Mat built by NewFactorMat additionally carries the fill pattern for
// an in-place block LU; see Factor and ApplyFactor.
type Mat struct {
	bs     int
	nbrows int
	nbcols int
	rowp   []int
	cols   []int
	vals   []float64
	diag   []int // block-entry index of the diagonal per row, -1 if absent

	kern     kernels
	pivotTol float64
	factored bool
}

// NewMat builds a zeroed matrix over the given block pattern. rowp has
// length nbrows+1; cols holds the block column of each entry and is
// sorted in place per row. Duplicate entries within a row are rejected.
func NewMat(bs, nbrows, nbcols int, rowp, cols []int) (*Mat, error) {
	if !supportedBlockSizes[bs] {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, bs)
	}
	if nbrows < 0 || nbcols < 0 || len(rowp) != nbrows+1 {
		return nil, fmt.Errorf("%w: rowp length %d for %d block rows", ErrDimensionMismatch, len(rowp), nbrows)
	}
	if rowp[0] != 0 || len(cols) != rowp[nbrows] {
		return nil, fmt.Errorf("%w: cols length %d, rowp ends at %d", ErrDimensionMismatch, len(cols), rowp[nbrows])
	}
	m := &Mat{
		bs:       bs,
		nbrows:   nbrows,
		nbcols:   nbcols,
		rowp:     append([]int(nil), rowp...),
		cols:     append([]int(nil), cols...),
		vals:     make([]float64, len(cols)*bs*bs),
		kern:     kernelsFor(bs),
		pivotTol: defaultPivotTol,
	}
	for i := 0; i < nbrows; i++ {
		if m.rowp[i] > m.rowp[i+1] {
			return nil, fmt.Errorf("%w: rowp decreases at row %d", ErrDimensionMismatch, i)
		}
		seg := m.cols[m.rowp[i]:m.rowp[i+1]]
		sort.Ints(seg)
		for k, c := range seg {
			if c < 0 || c >= nbcols {
				return nil, fmt.Errorf("%w: block column %d in row %d, matrix has %d",
					ErrDimensionMismatch, c, i, nbcols)
			}
			if k > 0 && seg[k-1] == c {
				return nil, fmt.Errorf("%w: duplicate block (%d,%d)", ErrStructuralMismatch, i, c)
			}
		}
	}
	if nbrows == nbcols {
		m.diag = make([]int, nbrows)
		for i := 0; i < nbrows; i++ {
			m.diag[i] = m.find(i, i)
		}
	}
	return m, nil
}

// BlockSize returns the scalar components per block.
func (m *Mat) BlockSize() int { return m.bs }

// NumBlockRows returns the block row count.
func (m *Mat) NumBlockRows() int { return m.nbrows }

// NumBlockCols returns the block column count.
func (m *Mat) NumBlockCols() int { return m.nbcols }

// Rows returns the scalar row count.
func (m *Mat) Rows() int { return m.nbrows * m.bs }

// Cols returns the scalar column count.
func (m *Mat) Cols() int { return m.nbcols * m.bs }

// NNZBlocks returns the number of stored blocks.
func (m *Mat) NNZBlocks() int { return len(m.cols) }

// SetPivotTol overrides the relative singularity threshold used when
// inverting diagonal blocks during Factor.
func (m *Mat) SetPivotTol(tol float64) { m.pivotTol = tol }

// find returns the block-entry index of (i,j), or -1.
func (m *Mat) find(i, j int) int {
	lo, hi := m.rowp[i], m.rowp[i+1]
	k := lo + sort.SearchInts(m.cols[lo:hi], j)
	if k < hi && m.cols[k] == j {
		return k
	}
	return -1
}

// BlockAt returns a view of block (i,j)'s values, or ok=false when the
// block is not in the pattern.
func (m *Mat) BlockAt(i, j int) (block []float64, ok bool) {
	if i < 0 || i >= m.nbrows || j < 0 || j >= m.nbcols {
		return nil, false
	}
	k := m.find(i, j)
	if k < 0 {
		return nil, false
	}
	bb := m.bs * m.bs
	return m.vals[k*bb : (k+1)*bb], true
}

// At returns one scalar entry, zero when outside the pattern. Intended
// for reporting and tests, not inner loops.
func (m *Mat) At(i, j int) float64 {
	b, ok := m.BlockAt(i/m.bs, j/m.bs)
	if !ok {
		return 0
	}
	return b[(i%m.bs)*m.bs+j%m.bs]
}

// Zero clears all values and invalidates any factorization.
func (m *Mat) Zero() {
	for i := range m.vals {
		m.vals[i] = 0
	}
	m.factored = false
}

// Scale multiplies all values by alpha.
func (m *Mat) Scale(alpha float64) {
	for i := range m.vals {
		m.vals[i] *= alpha
	}
	m.factored = false
}

// AddBlock accumulates one dense bs-by-bs block into entry (i,j).
func (m *Mat) AddBlock(i, j int, block []float64) error {
	bb := m.bs * m.bs
	if len(block) != bb {
		return fmt.Errorf("%w: block carries %d values, want %d", ErrDimensionMismatch, len(block), bb)
	}
	k := m.find(i, j)
	if k < 0 {
		return fmt.Errorf("%w: block (%d,%d)", ErrStructuralMismatch, i, j)
	}
	dst := m.vals[k*bb : (k+1)*bb]
	for p, v := range block {
		dst[p] += v
	}
	m.factored = false
	return nil
}

// AddValues scatters a dense element matrix into the pattern. values is
// row-major with len(rows)*bs rows and len(cols)*bs columns; block (a,b)
// lands at (rows[a], cols[b]). Negative indices skip that block row or
// column, which is how constrained variables are dropped at assembly.
// A target block missing from the pattern is a structural error naming
// the block.
func (m *Mat) AddValues(rows, cols []int, values []float64) error {
	var (
		bs  = m.bs
		nrv = len(rows) * bs
		ncv = len(cols) * bs
	)
	if len(values) != nrv*ncv {
		return fmt.Errorf("%w: element matrix carries %d values, want %d*%d",
			ErrDimensionMismatch, len(values), nrv, ncv)
	}
	for a, i := range rows {
		if i < 0 {
			continue
		}
		if i >= m.nbrows {
			return fmt.Errorf("%w: block row %d of %d", ErrDimensionMismatch, i, m.nbrows)
		}
		for b, j := range cols {
			if j < 0 {
				continue
			}
			k := m.find(i, j)
			if k < 0 {
				return fmt.Errorf("%w: block (%d,%d)", ErrStructuralMismatch, i, j)
			}
			dst := m.vals[k*bs*bs:]
			for r := 0; r < bs; r++ {
				src := values[(a*bs+r)*ncv+b*bs:]
				for c := 0; c < bs; c++ {
					dst[r*bs+c] += src[c]
				}
			}
		}
	}
	m.factored = false
	return nil
}

// AddWeightValues scatters an element matrix through weighted variable
// lists: element block row a expands to the variables
// vars[varp[a]:varp[a+1]] with matching weights, and each (va,vb) target
// receives wa*wb times the source block. Used for averaging and
// interpolation constraints.
func (m *Mat) AddWeightValues(weights []float64, varp, vars []int, values []float64) error {
	var (
		bs  = m.bs
		nev = len(varp) - 1
		ncv = nev * bs
	)
	if nev < 0 {
		return fmt.Errorf("%w: empty varp", ErrDimensionMismatch)
	}
	if len(vars) != varp[nev] || len(weights) != len(vars) {
		return fmt.Errorf("%w: %d vars with %d weights against varp ending at %d",
			ErrDimensionMismatch, len(vars), len(weights), varp[nev])
	}
	if len(values) != ncv*ncv {
		return fmt.Errorf("%w: element matrix carries %d values, want %d*%d",
			ErrDimensionMismatch, len(values), ncv, ncv)
	}
	block := make([]float64, bs*bs)
	for a := 0; a < nev; a++ {
		for b := 0; b < nev; b++ {
			for ap := varp[a]; ap < varp[a+1]; ap++ {
				if vars[ap] < 0 {
					continue
				}
				for bp := varp[b]; bp < varp[b+1]; bp++ {
					if vars[bp] < 0 {
						continue
					}
					w := weights[ap] * weights[bp]
					for r := 0; r < bs; r++ {
						for c := 0; c < bs; c++ {
							block[r*bs+c] = w * values[(a*bs+r)*ncv+b*bs+c]
						}
					}
					if err := m.AddBlock(vars[ap], vars[bp], block); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Mult computes y = A*x over scalar slices.
func (m *Mat) Mult(x, y []float64) error {
	if len(y) != m.Rows() {
		return fmt.Errorf("%w: output length %d, want %d", ErrDimensionMismatch, len(y), m.Rows())
	}
	for i := range y {
		y[i] = 0
	}
	return m.MultAdd(x, y)
}

// MultAdd computes y += A*x.
func (m *Mat) MultAdd(x, y []float64) error {
	var (
		bs = m.bs
		bb = bs * bs
	)
	if len(x) != m.Cols() || len(y) != m.Rows() {
		return fmt.Errorf("%w: multiply %d-by-%d against x[%d], y[%d]",
			ErrDimensionMismatch, m.Rows(), m.Cols(), len(x), len(y))
	}
	for i := 0; i < m.nbrows; i++ {
		yi := y[i*bs : (i+1)*bs]
		for k := m.rowp[i]; k < m.rowp[i+1]; k++ {
			j := m.cols[k]
			m.kern.matVecAdd(m.vals[k*bb:(k+1)*bb], x[j*bs:(j+1)*bs], yi)
		}
	}
	return nil
}

// MultSub computes y -= A*x.
func (m *Mat) MultSub(x, y []float64) error {
	var (
		bs = m.bs
		bb = bs * bs
	)
	if len(x) != m.Cols() || len(y) != m.Rows() {
		return fmt.Errorf("%w: multiply %d-by-%d against x[%d], y[%d]",
			ErrDimensionMismatch, m.Rows(), m.Cols(), len(x), len(y))
	}
	for i := 0; i < m.nbrows; i++ {
		yi := y[i*bs : (i+1)*bs]
		for k := m.rowp[i]; k < m.rowp[i+1]; k++ {
			j := m.cols[k]
			m.kern.matVecSub(m.vals[k*bb:(k+1)*bb], x[j*bs:(j+1)*bs], yi)
		}
	}
	return nil
}
