package bpmat

import (
	"fmt"

	"github.com/eirikurj/tacs/comm"
	"github.com/eirikurj/tacs/sparselu"
)

// SchurMode selects where the global interface system is factored.
type SchurMode int

const (
	// Redundant factors the interface system on every rank. No solve-time
	// broadcast; all ranks run the identical factorization.
	Redundant SchurMode = iota
	// RootOnly factors on rank 0 and broadcasts each solution.
	RootOnly
)

func (m SchurMode) String() string {
	switch m {
	case Redundant:
		return "Redundant"
	case RootOnly:
		return "RootOnly"
	default:
		return fmt.Sprintf("SchurMode(%d)", int(m))
	}
}

// SchurSolver assembles and factors the global interface system from
// per-rank contributions. Coincident entries, one per rank sharing an
// interface DOF, are summed during assembly; that sum is what makes the
// distributed operator consistent with its serial counterpart.
type SchurSolver struct {
	c    *comm.Comm
	n    int // global interface scalar dimension
	mode SchurMode
	lu   *sparselu.LU
}

func NewSchurSolver(c *comm.Comm, n int, mode SchurMode) *SchurSolver {
	return &SchurSolver{c: c, n: n, mode: mode}
}

// N returns the scalar dimension of the interface system.
func (s *SchurSolver) N() int { return s.n }

// Assemble gathers every rank's triplets (idx holds (row,col) pairs in
// global interface scalar numbering, vals the matching values) and
// builds the system on the factoring ranks. Collective.
func (s *SchurSolver) Assemble(idx []int, vals []float64) error {
	if len(idx) != 2*len(vals) {
		return fmt.Errorf("%w: %d indices for %d values", ErrDimensionMismatch, len(idx), len(vals))
	}
	allIdx, err := s.c.AllGatherInts(idx)
	if err != nil {
		return err
	}
	allVals, err := s.c.AllGatherFloats(vals)
	if err != nil {
		return err
	}
	if s.mode == RootOnly && s.c.Rank() != 0 {
		s.lu = nil
		return nil
	}
	lu := sparselu.New(s.n)
	for r := range allIdx {
		var (
			ri = allIdx[r]
			rv = allVals[r]
		)
		if len(ri) != 2*len(rv) {
			return fmt.Errorf("%w: rank %d sent %d indices for %d values",
				ErrDimensionMismatch, r, len(ri), len(rv))
		}
		for k, v := range rv {
			i, j := ri[2*k], ri[2*k+1]
			if i < 0 || i >= s.n || j < 0 || j >= s.n {
				return fmt.Errorf("%w: interface entry (%d,%d) outside %d-by-%d system",
					ErrDimensionMismatch, i, j, s.n, s.n)
			}
			lu.Add(i, j, v)
		}
	}
	s.lu = lu
	return nil
}

// Factor factors the assembled interface system. Collective in RootOnly
// mode so every rank learns the outcome.
func (s *SchurSolver) Factor() error {
	var ferr error
	if s.lu != nil {
		ferr = s.lu.Factor()
	}
	if s.mode == RootOnly {
		status := []float64{0}
		if s.c.Rank() == 0 && ferr != nil {
			status[0] = 1
		}
		status, berr := s.c.BcastFloats(0, status)
		if berr != nil {
			return berr
		}
		if status[0] != 0 && ferr == nil {
			return fmt.Errorf("%w: interface factorization failed on root", ErrSingular)
		}
	}
	if ferr != nil {
		return fmt.Errorf("bpmat: interface system: %w (%v)", ErrSingular, ferr)
	}
	return nil
}

// SolveAdd sums the per-rank right-hand-side contributions (length N)
// and returns the full interface solution on every rank. Collective.
func (s *SchurSolver) SolveAdd(rhs []float64) ([]float64, error) {
	if len(rhs) != s.n {
		return nil, fmt.Errorf("%w: interface rhs length %d, want %d", ErrDimensionMismatch, len(rhs), s.n)
	}
	sum := append([]float64(nil), rhs...)
	if err := s.c.AllReduceSum(sum); err != nil {
		return nil, err
	}
	if s.mode == Redundant {
		if s.lu == nil || !s.lu.Factored() {
			return nil, fmt.Errorf("%w: interface system", ErrNotFactored)
		}
		// Identical inputs and an identical deterministic factorization
		// give every rank the same bits.
		return s.lu.Solve(sum)
	}
	// Status travels ahead of the solution, as in Factor, so a root-side
	// failure reaches every rank instead of stranding them in the
	// broadcast.
	var (
		x    []float64
		serr error
	)
	if s.c.Rank() == 0 {
		if s.lu == nil || !s.lu.Factored() {
			serr = fmt.Errorf("%w: interface system", ErrNotFactored)
		} else {
			x, serr = s.lu.Solve(sum)
		}
	}
	status := []float64{0}
	if serr != nil {
		status[0] = 1
	}
	status, berr := s.c.BcastFloats(0, status)
	if berr != nil {
		return nil, berr
	}
	if status[0] != 0 {
		if serr != nil {
			return nil, serr
		}
		return nil, fmt.Errorf("%w: interface solve failed on root", ErrSingular)
	}
	return s.c.BcastFloats(0, x)
}
