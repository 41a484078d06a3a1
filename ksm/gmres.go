package ksm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/eirikurj/tacs/bpmat"
)

const (
	DefaultRestart       = 30
	DefaultMaxIters      = 1000
	DefaultRelTol        = 1e-8
	DefaultAbsTol        = 1e-30
	DefaultDivergeFactor = 1e4
)

// GMRES is the restarted generalized minimal residual method with left
// preconditioning and modified Gram-Schmidt orthogonalization. The
// solver is bound to one operator; basis vectors and the Hessenberg
// store are reused across Solve calls.
type GMRES struct {
	A        Operator
	M        Preconditioner
	Restart  int
	MaxIters int
	RelTol   float64
	AbsTol   float64
	// DivergeFactor flags divergence once the residual estimate exceeds
	// this multiple of its minimum so far. Zero disables the check.
	DivergeFactor float64
	Monitor       Monitor

	v      []*bpmat.Vec
	w      *bpmat.Vec
	h      []float64 // rotated Hessenberg, column-major, leading dim Restart+1
	cs, sn []float64
	s, y   []float64
}

// NewGMRES returns a solver for a with default tolerances and no
// preconditioner.
func NewGMRES(a Operator) *GMRES {
	return &GMRES{
		A:             a,
		Restart:       DefaultRestart,
		MaxIters:      DefaultMaxIters,
		RelTol:        DefaultRelTol,
		AbsTol:        DefaultAbsTol,
		DivergeFactor: DefaultDivergeFactor,
	}
}

func (g *GMRES) alloc() {
	m := g.Restart
	if len(g.v) == m+1 {
		return
	}
	g.v = make([]*bpmat.Vec, m+1)
	for i := range g.v {
		g.v[i] = g.A.CreateVec()
	}
	g.w = g.A.CreateVec()
	g.h = make([]float64, (m+1)*m)
	g.cs = make([]float64, m)
	g.sn = make([]float64, m)
	g.s = make([]float64, m+1)
	g.y = make([]float64, m)
}

// Solve iterates on A*x = b from the initial guess in x, leaving the
// solution there. b is not modified. Convergence is judged on the
// preconditioned residual norm against max(RelTol*r0, AbsTol), r0 being
// the initial residual norm; the iteration reports Diverged when the
// residual turns non-finite or exceeds DivergeFactor times its minimum
// so far. Collective.
func (g *GMRES) Solve(b, x *bpmat.Vec) (Result, error) {
	var (
		m  = g.Restart
		ld = m + 1
	)
	if m < 1 || g.MaxIters < 1 {
		return Result{}, fmt.Errorf("ksm: restart %d with iteration cap %d", m, g.MaxIters)
	}
	g.alloc()
	var (
		iter   int
		tol    float64
		minRes float64
	)
	for {
		// r = M^-1 (b - A x) into v[0].
		if err := x.ScatterGhosts(); err != nil {
			return Result{}, err
		}
		if err := g.A.Mult(x, g.w); err != nil {
			return Result{}, err
		}
		g.w.Scale(-1)
		if err := g.w.Axpy(1, b); err != nil {
			return Result{}, err
		}
		r := g.v[0]
		if g.M != nil {
			if err := g.M.ApplyFactor(g.w, r); err != nil {
				return Result{}, err
			}
		} else if err := r.CopyFrom(g.w); err != nil {
			return Result{}, err
		}
		beta, err := r.Norm()
		if err != nil {
			return Result{}, err
		}
		if iter == 0 {
			tol = g.RelTol * beta
			if tol < g.AbsTol {
				tol = g.AbsTol
			}
			minRes = beta
			if g.Monitor != nil {
				g.Monitor(0, beta)
			}
		}
		if math.IsNaN(beta) || math.IsInf(beta, 0) {
			return Result{Outcome: Diverged, Iterations: iter, Residual: beta}, nil
		}
		if beta <= tol {
			return Result{Outcome: Converged, Iterations: iter, Residual: beta}, nil
		}
		if g.DivergeFactor > 0 && beta > g.DivergeFactor*minRes {
			return Result{Outcome: Diverged, Iterations: iter, Residual: beta}, nil
		}
		if beta < minRes {
			minRes = beta
		}
		r.Scale(1 / beta)
		for i := range g.s {
			g.s[i] = 0
		}
		g.s[0] = beta

		for j := 0; j < m; j++ {
			// Candidate basis vector in v[j+1].
			if err := g.v[j].ScatterGhosts(); err != nil {
				return Result{}, err
			}
			if err := g.A.Mult(g.v[j], g.w); err != nil {
				return Result{}, err
			}
			w := g.v[j+1]
			if g.M != nil {
				if err := g.M.ApplyFactor(g.w, w); err != nil {
					return Result{}, err
				}
			} else if err := w.CopyFrom(g.w); err != nil {
				return Result{}, err
			}
			for i := 0; i <= j; i++ {
				hij, err := g.v[i].Dot(w)
				if err != nil {
					return Result{}, err
				}
				g.h[j*ld+i] = hij
				if err := w.Axpy(-hij, g.v[i]); err != nil {
					return Result{}, err
				}
			}
			hj1, err := w.Norm()
			if err != nil {
				return Result{}, err
			}
			g.h[j*ld+j+1] = hj1
			if hj1 > 0 {
				w.Scale(1 / hj1)
			}
			for i := 0; i < j; i++ {
				hi, hi1 := g.h[j*ld+i], g.h[j*ld+i+1]
				g.h[j*ld+i] = g.cs[i]*hi + g.sn[i]*hi1
				g.h[j*ld+i+1] = -g.sn[i]*hi + g.cs[i]*hi1
			}
			c, s, rr, _ := blas64.Implementation().Drotg(g.h[j*ld+j], g.h[j*ld+j+1])
			g.cs[j], g.sn[j] = c, s
			g.h[j*ld+j] = rr
			g.h[j*ld+j+1] = 0
			g.s[j+1] = -s * g.s[j]
			g.s[j] = c * g.s[j]

			iter++
			res := math.Abs(g.s[j+1])
			if g.Monitor != nil {
				g.Monitor(iter, res)
			}
			if math.IsNaN(res) || math.IsInf(res, 0) {
				return Result{Outcome: Diverged, Iterations: iter, Residual: res}, nil
			}
			if g.DivergeFactor > 0 && res > g.DivergeFactor*minRes {
				return Result{Outcome: Diverged, Iterations: iter, Residual: res}, nil
			}
			if res < minRes {
				minRes = res
			}
			if res <= tol || iter >= g.MaxIters {
				if err := g.update(x, j+1, ld); err != nil {
					return Result{}, err
				}
				out := Converged
				if res > tol {
					out = MaxIterationsReached
				}
				return Result{Outcome: out, Iterations: iter, Residual: res}, nil
			}
			if hj1 == 0 {
				// Exhausted Krylov space; fold in what we have and let
				// the outer loop recompute the true residual.
				if err := g.update(x, j+1, ld); err != nil {
					return Result{}, err
				}
				break
			}
			if j == m-1 {
				if err := g.update(x, m, ld); err != nil {
					return Result{}, err
				}
			}
		}
	}
}

// update solves the small least-squares system and folds the correction
// into x. h is column-major, so read row-major it is the transpose and
// the upper-triangular solve runs as a transposed lower solve.
func (g *GMRES) update(x *bpmat.Vec, k, ld int) error {
	copy(g.y[:k], g.s[:k])
	blas64.Implementation().Dtrsv(blas.Lower, blas.Trans, blas.NonUnit, k, g.h, ld, g.y, 1)
	for i := 0; i < k; i++ {
		if err := x.Axpy(g.y[i], g.v[i]); err != nil {
			return err
		}
	}
	return nil
}
