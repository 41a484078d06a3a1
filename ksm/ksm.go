// Package ksm provides Krylov subspace methods over distributed vectors.
// Every rank runs the same iteration: inner products reduce globally, so
// iterates, rotation coefficients and the convergence decision are
// bitwise identical across ranks.
package ksm

import (
	"fmt"

	"github.com/eirikurj/tacs/bpmat"
)

// Operator is a linear operator on distributed vectors. Mult reads the
// ghost segment of x as stored; the caller scatters ghosts after the
// owned values change, and one scatter covers every product taken from
// that x.
type Operator interface {
	Mult(x, y *bpmat.Vec) error
	CreateVec() *bpmat.Vec
}

// Preconditioner applies an approximate inverse, y = M^-1 x.
type Preconditioner interface {
	ApplyFactor(x, y *bpmat.Vec) error
}

// Outcome reports how an iteration ended. Hitting the iteration cap or
// diverging is an answer, not a failure: Solve returns an error only for
// structural problems.
type Outcome int

const (
	Converged Outcome = iota
	MaxIterationsReached
	Diverged
)

func (o Outcome) String() string {
	switch o {
	case Converged:
		return "Converged"
	case MaxIterationsReached:
		return "MaxIterationsReached"
	case Diverged:
		return "Diverged"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result carries the iteration count and the final preconditioned
// residual estimate.
type Result struct {
	Outcome    Outcome
	Iterations int
	Residual   float64
}

// Monitor observes the residual estimate after each iteration.
type Monitor func(iter int, resNorm float64)
