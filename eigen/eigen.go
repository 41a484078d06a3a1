// Package eigen solves the generalized symmetric eigenproblem
// K*x = lambda*M*x for the smallest eigenvalues with a Jacobi-Davidson
// iteration over distributed vectors. The search space is kept
// M-orthonormal, the projected problem is dense symmetric, and converged
// pairs are locked out of the active subspace.
package eigen

import (
	"fmt"

	"github.com/eirikurj/tacs/bpmat"
)

// Outcome reports how the eigenvalue iteration ended.
type Outcome int

const (
	Converged Outcome = iota
	NoConvergence
	Diverged
)

func (o Outcome) String() string {
	switch o {
	case Converged:
		return "Converged"
	case NoConvergence:
		return "NoConvergence"
	case Diverged:
		return "Diverged"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result carries the locked eigenpairs in ascending order. On
// NoConvergence or Diverged it holds the pairs locked so far.
type Result struct {
	Outcome    Outcome
	Iterations int
	Converged  int
	Values     []float64
	Residuals  []float64
	Vectors    []*bpmat.Vec
}

// Monitor observes each outer iteration: locked pair count and the
// residual norm of the current Ritz pair.
type Monitor func(iter, nconv int, resNorm float64)
