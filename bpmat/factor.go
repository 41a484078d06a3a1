package bpmat

import "fmt"

// Factor runs the in-place block LU. On return the strictly lower
// entries hold L (unit block diagonal implied, each stored block already
// multiplied by the inverted pivot), the upper entries hold U, and the
// diagonal blocks hold their inverses. Pivoting happens only inside
// diagonal blocks; the block pattern never changes, so fill outside the
// pattern is dropped, which is exact when the pattern came from
// NewFactorMat with complete fill and an incomplete factorization
// otherwise.
//
// A diagonal block that cannot be inverted stops the factorization and
// reports its block row. Calling Factor again without a CopyValues
// refresh is a no-op that keeps the existing factors.
func (m *Mat) Factor() error {
	if m.nbrows != m.nbcols {
		return fmt.Errorf("%w: factor of %d-by-%d block matrix",
			ErrDimensionMismatch, m.nbrows, m.nbcols)
	}
	if m.factored {
		return nil
	}
	var (
		bb  = m.bs * m.bs
		inv = make([]float64, bb)
		t   = make([]float64, bb)
	)
	for i := 0; i < m.nbrows; i++ {
		if m.diag[i] < 0 {
			return fmt.Errorf("%w: no diagonal block in row %d", ErrStructuralMismatch, i)
		}
		for ip := m.rowp[i]; ip < m.rowp[i+1] && m.cols[ip] < i; ip++ {
			var (
				k   = m.cols[ip]
				aik = m.vals[ip*bb : (ip+1)*bb]
			)
			// L_ik = A_ik * D_k^-1, then eliminate row k from the rest
			// of row i. Both rows are column-sorted, so one merge pass
			// finds the overlapping entries.
			m.kern.postMul(aik, m.vals[m.diag[k]*bb:(m.diag[k]+1)*bb], t)
			jp := ip + 1
			for kp := m.diag[k] + 1; kp < m.rowp[k+1]; kp++ {
				j := m.cols[kp]
				for jp < m.rowp[i+1] && m.cols[jp] < j {
					jp++
				}
				if jp == m.rowp[i+1] {
					break
				}
				if m.cols[jp] == j {
					m.kern.gemmSub(aik, m.vals[kp*bb:(kp+1)*bb], m.vals[jp*bb:(jp+1)*bb])
				}
			}
		}
		d := m.vals[m.diag[i]*bb : (m.diag[i]+1)*bb]
		if err := invertBlock(m.bs, d, inv, m.pivotTol); err != nil {
			return fmt.Errorf("bpmat: factor block row %d: %w", i, err)
		}
		copy(d, inv)
	}
	m.factored = true
	return nil
}

// Factored reports whether the values currently hold a factorization.
func (m *Mat) Factored() bool { return m.factored }

// ApplyFactor solves L*U*x = b in place, where x enters holding b.
func (m *Mat) ApplyFactor(x []float64) error {
	if !m.factored {
		return fmt.Errorf("%w: apply before Factor", ErrNotFactored)
	}
	bs := m.bs
	if len(x) != m.Rows() {
		return fmt.Errorf("%w: solve length %d, want %d", ErrDimensionMismatch, len(x), m.Rows())
	}
	var (
		bb = bs * bs
		t  = make([]float64, bs)
	)
	// Forward: x_i -= L_ik x_k, unit block diagonal.
	for i := 0; i < m.nbrows; i++ {
		xi := x[i*bs : (i+1)*bs]
		for ip := m.rowp[i]; ip < m.rowp[i+1] && m.cols[ip] < i; ip++ {
			k := m.cols[ip]
			m.kern.matVecSub(m.vals[ip*bb:(ip+1)*bb], x[k*bs:(k+1)*bs], xi)
		}
	}
	// Backward: x_i = D_i^-1 (x_i - U_ij x_j).
	for i := m.nbrows - 1; i >= 0; i-- {
		xi := x[i*bs : (i+1)*bs]
		for ip := m.diag[i] + 1; ip < m.rowp[i+1]; ip++ {
			j := m.cols[ip]
			m.kern.matVecSub(m.vals[ip*bb:(ip+1)*bb], x[j*bs:(j+1)*bs], xi)
		}
		for c := 0; c < bs; c++ {
			t[c] = 0
		}
		m.kern.matVecAdd(m.vals[m.diag[i]*bb:(m.diag[i]+1)*bb], xi, t)
		copy(xi, t)
	}
	return nil
}

// ApplySolve solves L*U*x = b without touching b.
func (m *Mat) ApplySolve(b, x []float64) error {
	if len(b) != len(x) {
		return fmt.Errorf("%w: rhs length %d, solution length %d", ErrDimensionMismatch, len(b), len(x))
	}
	copy(x, b)
	return m.ApplyFactor(x)
}
