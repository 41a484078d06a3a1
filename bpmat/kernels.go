package bpmat

import (
	"fmt"
	"math"
)

// kernels holds the hot block operations for one block size. a, b and c
// are bs*bs row-major blocks; x and y are length-bs slices.
//
//	matVecAdd:  y += a*x
//	matVecSub:  y -= a*x
//	gemmSub:    c -= a*b
//	postMul:    a  = a*b, using t (len bs*bs) as scratch
type kernels struct {
	bs        int
	matVecAdd func(a, x, y []float64)
	matVecSub func(a, x, y []float64)
	gemmSub   func(a, b, c []float64)
	postMul   func(a, b, t []float64)
}

// kernelsFor selects the specialized set for a supported block size.
func kernelsFor(bs int) kernels {
	switch bs {
	case 1:
		return kernels{bs: 1, matVecAdd: matVecAdd1, matVecSub: matVecSub1, gemmSub: gemmSub1, postMul: postMul1}
	case 2:
		return kernels{bs: 2, matVecAdd: matVecAdd2, matVecSub: matVecSub2, gemmSub: gemmSub2, postMul: postMul2}
	case 3:
		return kernels{bs: 3, matVecAdd: matVecAdd3, matVecSub: matVecSub3, gemmSub: gemmSub3, postMul: postMul3}
	case 4:
		return kernels{bs: 4, matVecAdd: matVecAdd4, matVecSub: matVecSub4, gemmSub: gemmSub4, postMul: postMul4}
	case 5:
		return kernels{bs: 5, matVecAdd: matVecAdd5, matVecSub: matVecSub5, gemmSub: gemmSub5, postMul: postMul5}
	case 6:
		return kernels{bs: 6, matVecAdd: matVecAdd6, matVecSub: matVecSub6, gemmSub: gemmSub6, postMul: postMul6}
	case 8:
		return kernels{bs: 8, matVecAdd: matVecAdd8, matVecSub: matVecSub8, gemmSub: gemmSub8, postMul: postMul8}
	default:
		return genericKernels(bs)
	}
}

// genericKernels implements every operation with plain scalar loops for
// any block size. It is the reference the specialized sets are tested
// against; the unrolled sizes may round differently at the last bit.
func genericKernels(bs int) kernels {
	return kernels{
		bs: bs,
		matVecAdd: func(a, x, y []float64) {
			for i := 0; i < bs; i++ {
				s := y[i]
				ai := a[i*bs:]
				for j := 0; j < bs; j++ {
					s += ai[j] * x[j]
				}
				y[i] = s
			}
		},
		matVecSub: func(a, x, y []float64) {
			for i := 0; i < bs; i++ {
				s := y[i]
				ai := a[i*bs:]
				for j := 0; j < bs; j++ {
					s -= ai[j] * x[j]
				}
				y[i] = s
			}
		},
		gemmSub: func(a, b, c []float64) {
			for i := 0; i < bs; i++ {
				ai := a[i*bs:]
				ci := c[i*bs:]
				for j := 0; j < bs; j++ {
					s := ci[j]
					for k := 0; k < bs; k++ {
						s -= ai[k] * b[k*bs+j]
					}
					ci[j] = s
				}
			}
		},
		postMul: func(a, b, t []float64) {
			for i := 0; i < bs; i++ {
				ai := a[i*bs:]
				ti := t[i*bs:]
				for j := 0; j < bs; j++ {
					s := 0.0
					for k := 0; k < bs; k++ {
						s += ai[k] * b[k*bs+j]
					}
					ti[j] = s
				}
			}
			copy(a[:bs*bs], t[:bs*bs])
		},
	}
}

// invertBlock computes inv = a^-1 for an n-by-n row-major block by
// Gauss-Jordan elimination with partial (row) pivoting. A pivot whose
// magnitude falls at or below tol times the block's largest entry is
// singular. a is left untouched.
func invertBlock(n int, a, inv []float64, tol float64) error {
	if n == 1 {
		if math.Abs(a[0]) <= tol {
			return fmt.Errorf("%w: zero diagonal", ErrSingular)
		}
		inv[0] = 1 / a[0]
		return nil
	}
	var scale float64
	for _, v := range a[:n*n] {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		return fmt.Errorf("%w: zero block", ErrSingular)
	}
	var (
		work = append([]float64(nil), a[:n*n]...)
		cut  = tol * scale
	)
	for i := 0; i < n*n; i++ {
		inv[i] = 0
	}
	for i := 0; i < n; i++ {
		inv[i*n+i] = 1
	}
	for col := 0; col < n; col++ {
		// Largest remaining entry in this column is the pivot; ties go
		// to the lowest row.
		piv, pmax := col, math.Abs(work[col*n+col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(work[r*n+col]); v > pmax {
				piv, pmax = r, v
			}
		}
		if pmax <= cut {
			return fmt.Errorf("%w: pivot %g at block column %d", ErrSingular, pmax, col)
		}
		if piv != col {
			for j := 0; j < n; j++ {
				work[col*n+j], work[piv*n+j] = work[piv*n+j], work[col*n+j]
				inv[col*n+j], inv[piv*n+j] = inv[piv*n+j], inv[col*n+j]
			}
		}
		d := 1 / work[col*n+col]
		for j := 0; j < n; j++ {
			work[col*n+j] *= d
			inv[col*n+j] *= d
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := work[r*n+col]
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				work[r*n+j] -= f * work[col*n+j]
				inv[r*n+j] -= f * inv[col*n+j]
			}
		}
	}
	return nil
}
