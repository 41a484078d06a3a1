package eigen

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/eirikurj/tacs/bpmat"
	"github.com/eirikurj/tacs/ksm"
)

const (
	DefaultMaxSubspace = 15
	DefaultMaxIters    = 200
	DefaultTol         = 1e-9
	DefaultInnerIters  = 5

	// Below this M-norm an orthogonalized expansion vector counts as
	// linearly dependent and the iteration reseeds.
	breakdownTol = 1e-12
)

// JacobiDavidson finds the smallest eigenvalues of K*x = lambda*M*x.
// K and M must be symmetric and M positive definite. Prec, when set,
// preconditions the correction equation; an approximate factorization
// of K serves well for the smallest end of the spectrum.
//
// Solve is collective: every rank runs the identical iteration from
// identical reductions. Basis and scratch vectors are reused across
// Solve calls.
type JacobiDavidson struct {
	K    ksm.Operator
	M    ksm.Operator
	Prec ksm.Preconditioner

	NumPairs    int
	MaxSubspace int
	MinSubspace int
	MaxIters    int
	Tol         float64
	InnerIters  int
	Monitor     Monitor

	v, kv []*bpmat.Vec // M-orthonormal basis and K times it
	q, mq []*bpmat.Vec // locked eigenvectors and M times them
	lam   []float64
	rnrm  []float64
	a     []float64 // projected V^T K V, row-major, leading dim MaxSubspace

	t, w, u, ku, mu, r, rneg *bpmat.Vec
	pool                     []*bpmat.Vec // rebuild scratch

	shift *shiftOperator
	corr  *ksm.GMRES
}

// NewJacobiDavidson returns a solver for nev pairs with default
// subspace sizes and tolerances.
func NewJacobiDavidson(k, m ksm.Operator, nev int) *JacobiDavidson {
	return &JacobiDavidson{K: k, M: m, NumPairs: nev}
}

// shiftOperator applies y = (K - theta*M) x for the correction equation.
type shiftOperator struct {
	k, m  ksm.Operator
	theta float64
	tmp   *bpmat.Vec
}

func (s *shiftOperator) CreateVec() *bpmat.Vec { return s.k.CreateVec() }

func (s *shiftOperator) Mult(x, y *bpmat.Vec) error {
	// The caller's ghost scatter covers both products.
	if err := s.k.Mult(x, y); err != nil {
		return err
	}
	if s.tmp == nil {
		s.tmp = s.k.CreateVec()
	}
	if err := s.m.Mult(x, s.tmp); err != nil {
		return err
	}
	return y.Axpy(-s.theta, s.tmp)
}

func (jd *JacobiDavidson) setDefaults() error {
	if jd.K == nil || jd.M == nil {
		return fmt.Errorf("eigen: both operators must be set")
	}
	if jd.NumPairs < 1 {
		return fmt.Errorf("eigen: %d pairs requested", jd.NumPairs)
	}
	if jd.MaxSubspace == 0 {
		jd.MaxSubspace = DefaultMaxSubspace
		if jd.MaxSubspace < jd.NumPairs+2 {
			jd.MaxSubspace = jd.NumPairs + 2
		}
	}
	if jd.MinSubspace == 0 {
		jd.MinSubspace = (jd.MaxSubspace + 1) / 2
	}
	if jd.MinSubspace < 1 || jd.MinSubspace >= jd.MaxSubspace {
		return fmt.Errorf("eigen: restart keeps %d of a %d-vector subspace", jd.MinSubspace, jd.MaxSubspace)
	}
	if jd.MaxIters == 0 {
		jd.MaxIters = DefaultMaxIters
	}
	if jd.Tol == 0 {
		jd.Tol = DefaultTol
	}
	if jd.InnerIters == 0 {
		jd.InnerIters = DefaultInnerIters
	}
	return nil
}

func (jd *JacobiDavidson) alloc() {
	if len(jd.v) == jd.MaxSubspace {
		return
	}
	var (
		newVec = jd.K.CreateVec
		m      = jd.MaxSubspace
	)
	jd.v = make([]*bpmat.Vec, m)
	jd.kv = make([]*bpmat.Vec, m)
	// rebuild copies a basis and its K image, so the pool holds both.
	jd.pool = make([]*bpmat.Vec, 2*m)
	for i := 0; i < m; i++ {
		jd.v[i] = newVec()
		jd.kv[i] = newVec()
	}
	for i := range jd.pool {
		jd.pool[i] = newVec()
	}
	jd.a = make([]float64, m*m)
	jd.t = newVec()
	jd.w = newVec()
	jd.u = newVec()
	jd.ku = newVec()
	jd.mu = newVec()
	jd.r = newVec()
	jd.rneg = newVec()

	jd.shift = &shiftOperator{k: jd.K, m: jd.M}
	jd.corr = ksm.NewGMRES(jd.shift)
	jd.corr.RelTol = 1e-2
}

// seed fills t with a deterministic full-support pattern over the owned
// values. salt varies the pattern between reseeds.
func (jd *JacobiDavidson) seed(t *bpmat.Vec, salt int) {
	t.Zero()
	owned := t.Owned()
	for i := range owned {
		owned[i] = 1 + float64((i+salt)%3)
	}
}

// morthonormalize projects t M-orthogonal to the locked pairs and the
// first k basis vectors, normalizes it in the M-norm, and returns that
// norm. Two classical Gram-Schmidt passes keep the basis orthonormal to
// working precision.
func (jd *JacobiDavidson) morthonormalize(t *bpmat.Vec, k int) (float64, error) {
	for pass := 0; pass < 2; pass++ {
		if err := t.ScatterGhosts(); err != nil {
			return 0, err
		}
		if err := jd.M.Mult(t, jd.w); err != nil {
			return 0, err
		}
		for _, qi := range jd.q {
			h, err := qi.Dot(jd.w)
			if err != nil {
				return 0, err
			}
			if err := t.Axpy(-h, qi); err != nil {
				return 0, err
			}
		}
		for i := 0; i < k; i++ {
			h, err := jd.v[i].Dot(jd.w)
			if err != nil {
				return 0, err
			}
			if err := t.Axpy(-h, jd.v[i]); err != nil {
				return 0, err
			}
		}
	}
	if err := t.ScatterGhosts(); err != nil {
		return 0, err
	}
	if err := jd.M.Mult(t, jd.w); err != nil {
		return 0, err
	}
	b2, err := t.Dot(jd.w)
	if err != nil {
		return 0, err
	}
	if b2 <= 0 {
		return 0, nil
	}
	beta := math.Sqrt(b2)
	if beta > breakdownTol {
		t.Scale(1 / beta)
	}
	return beta, nil
}

// expand appends t as basis vector k and fills the new row and column
// of the projected matrix. On linear dependence it reseeds once.
func (jd *JacobiDavidson) expand(k int, t *bpmat.Vec, iter int) error {
	beta, err := jd.morthonormalize(t, k)
	if err != nil {
		return err
	}
	if beta <= breakdownTol {
		jd.seed(t, iter+1)
		if beta, err = jd.morthonormalize(t, k); err != nil {
			return err
		}
		if beta <= breakdownTol {
			return fmt.Errorf("eigen: search space breakdown at size %d", k)
		}
	}
	if err := jd.v[k].CopyFrom(t); err != nil {
		return err
	}
	if err := jd.v[k].ScatterGhosts(); err != nil {
		return err
	}
	if err := jd.K.Mult(jd.v[k], jd.kv[k]); err != nil {
		return err
	}
	ld := jd.MaxSubspace
	for i := 0; i <= k; i++ {
		h, err := jd.v[i].Dot(jd.kv[k])
		if err != nil {
			return err
		}
		jd.a[i*ld+k] = h
		jd.a[k*ld+i] = h
	}
	return nil
}

// projected solves the k-by-k dense symmetric eigenproblem of the
// projected matrix. Values come back ascending.
func (jd *JacobiDavidson) projected(k int) ([]float64, *mat.Dense, error) {
	var (
		ld  = jd.MaxSubspace
		sym = mat.NewSymDense(k, nil)
	)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, jd.a[i*ld+j])
		}
	}
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, nil, fmt.Errorf("eigen: projected eigenproblem of size %d did not converge", k)
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	return es.Values(nil), &vecs, nil
}

// extract forms the Ritz pair of column col: u, K*u, M*u and the
// residual r = K*u - theta*M*u. Returns the residual norm.
func (jd *JacobiDavidson) extract(k int, vecs *mat.Dense, col int, theta float64) (float64, error) {
	jd.u.Zero()
	jd.ku.Zero()
	for i := 0; i < k; i++ {
		s := vecs.At(i, col)
		if err := jd.u.Axpy(s, jd.v[i]); err != nil {
			return 0, err
		}
		if err := jd.ku.Axpy(s, jd.kv[i]); err != nil {
			return 0, err
		}
	}
	if err := jd.u.ScatterGhosts(); err != nil {
		return 0, err
	}
	if err := jd.M.Mult(jd.u, jd.mu); err != nil {
		return 0, err
	}
	if err := jd.r.CopyFrom(jd.ku); err != nil {
		return 0, err
	}
	if err := jd.r.Axpy(-theta, jd.mu); err != nil {
		return 0, err
	}
	return jd.r.Norm()
}

// lock appends the current Ritz pair to the converged set.
func (jd *JacobiDavidson) lock(theta, rnorm float64) {
	jd.q = append(jd.q, jd.u.Copy())
	jd.mq = append(jd.mq, jd.mu.Copy())
	jd.lam = append(jd.lam, theta)
	jd.rnrm = append(jd.rnrm, rnorm)
}

// rebuild replaces the basis with the Ritz vectors of columns
// [from, to). Ritz vectors diagonalize the projection, so the projected
// matrix becomes diag(vals[from:to]) exactly.
func (jd *JacobiDavidson) rebuild(k int, vals []float64, vecs *mat.Dense, from, to int) error {
	keep := to - from
	for j := 0; j < keep; j++ {
		var (
			y  = jd.pool[j]
			ky = jd.pool[keep+j]
		)
		y.Zero()
		ky.Zero()
		for i := 0; i < k; i++ {
			s := vecs.At(i, from+j)
			if err := y.Axpy(s, jd.v[i]); err != nil {
				return err
			}
			if err := ky.Axpy(s, jd.kv[i]); err != nil {
				return err
			}
		}
	}
	ld := jd.MaxSubspace
	for i := range jd.a {
		jd.a[i] = 0
	}
	for j := 0; j < keep; j++ {
		if err := jd.v[j].CopyFrom(jd.pool[j]); err != nil {
			return err
		}
		if err := jd.kv[j].CopyFrom(jd.pool[keep+j]); err != nil {
			return err
		}
		jd.a[j*ld+j] = vals[from+j]
	}
	return nil
}

func (jd *JacobiDavidson) result(o Outcome, iter int) Result {
	return Result{
		Outcome:    o,
		Iterations: iter,
		Converged:  len(jd.lam),
		Values:     append([]float64(nil), jd.lam...),
		Residuals:  append([]float64(nil), jd.rnrm...),
		Vectors:    append([]*bpmat.Vec(nil), jd.q...),
	}
}

// Solve runs the outer iteration until NumPairs eigenpairs lock or the
// iteration cap is hit. Each outer iteration expands the subspace by one
// approximately solved correction, extracts the smallest Ritz pair,
// locks it when its residual is below Tol, and thick-restarts at
// MaxSubspace. Collective.
func (jd *JacobiDavidson) Solve() (Result, error) {
	if err := jd.setDefaults(); err != nil {
		return Result{}, err
	}
	jd.alloc()
	jd.corr.Restart = jd.InnerIters
	jd.corr.MaxIters = jd.InnerIters
	jd.corr.M = jd.Prec
	jd.q = jd.q[:0]
	jd.mq = jd.mq[:0]
	jd.lam = jd.lam[:0]
	jd.rnrm = jd.rnrm[:0]

	var (
		k = 0
		t = jd.t
	)
	jd.seed(t, 0)
	for iter := 1; iter <= jd.MaxIters; iter++ {
		if err := jd.expand(k, t, iter); err != nil {
			return Result{}, err
		}
		k++

		var (
			theta    float64
			rnorm    float64
			first    = true
			reseeded bool
		)
		for {
			vals, vecs, err := jd.projected(k)
			if err != nil {
				return Result{}, err
			}
			theta = vals[0]
			rnorm, err = jd.extract(k, vecs, 0, theta)
			if err != nil {
				return Result{}, err
			}
			if first {
				if jd.Monitor != nil {
					jd.Monitor(iter, len(jd.lam), rnorm)
				}
				first = false
			}
			if math.IsNaN(rnorm) || math.IsInf(rnorm, 0) {
				return jd.result(Diverged, iter), nil
			}
			if rnorm > jd.Tol {
				if k >= jd.MaxSubspace {
					if err := jd.rebuild(k, vals, vecs, 0, jd.MinSubspace); err != nil {
						return Result{}, err
					}
					k = jd.MinSubspace
				}
				break
			}
			jd.lock(theta, rnorm)
			if len(jd.lam) == jd.NumPairs {
				return jd.result(Converged, iter), nil
			}
			if k == 1 {
				// Locking emptied the subspace; grow it afresh.
				jd.seed(t, iter)
				reseeded = true
				break
			}
			if err := jd.rebuild(k, vals, vecs, 1, k); err != nil {
				return Result{}, err
			}
			k--
		}
		if reseeded {
			continue
		}

		// Correction equation (K - theta*M) t = -r, solved loosely.
		jd.shift.theta = theta
		if err := jd.rneg.CopyFrom(jd.r); err != nil {
			return Result{}, err
		}
		jd.rneg.Scale(-1)
		t.Zero()
		cres, err := jd.corr.Solve(jd.rneg, t)
		if err != nil {
			return Result{}, err
		}
		if cres.Outcome == ksm.Diverged {
			// Fall back to the preconditioned residual direction.
			if jd.Prec != nil {
				if err := jd.Prec.ApplyFactor(jd.rneg, t); err != nil {
					return Result{}, err
				}
			} else if err := t.CopyFrom(jd.rneg); err != nil {
				return Result{}, err
			}
		}
	}
	return jd.result(NoConvergence, jd.MaxIters), nil
}
