package bpmat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eirikurj/tacs/comm"
)

// interfaceSystem contributes the 2x2 system
//
//	[ 2 -1 ]        [5]
//	[-1  3 ] x  =   [5]
//
// split across two ranks with the (0,0) entry coincident.
func interfaceSystem(s *SchurSolver, rank int) error {
	if rank == 0 {
		return s.Assemble([]int{0, 0, 0, 1, 1, 0}, []float64{1, -1, -1})
	}
	return s.Assemble([]int{0, 0, 1, 1}, []float64{1, 3})
}

func TestSchurSolverSumsCoincident(t *testing.T) {
	err := comm.Run(2, func(c *comm.Comm) error {
		s := NewSchurSolver(c, 2, Redundant)
		assert.Equal(t, 2, s.N())
		if err := interfaceSystem(s, c.Rank()); err != nil {
			return err
		}
		if err := s.Factor(); err != nil {
			return err
		}
		rhs := []float64{5, 0}
		if c.Rank() == 1 {
			rhs = []float64{0, 5}
		}
		x, err := s.SolveAdd(rhs)
		if err != nil {
			return err
		}
		assert.InDelta(t, 4.0, x[0], 1e-12)
		assert.InDelta(t, 3.0, x[1], 1e-12)
		return nil
	})
	require.NoError(t, err)
}

func TestSchurSolverModesAgree(t *testing.T) {
	for _, mode := range []SchurMode{Redundant, RootOnly} {
		err := comm.Run(2, func(c *comm.Comm) error {
			s := NewSchurSolver(c, 2, mode)
			if err := interfaceSystem(s, c.Rank()); err != nil {
				return err
			}
			if err := s.Factor(); err != nil {
				return err
			}
			rhs := []float64{5, 0}
			if c.Rank() == 1 {
				rhs = []float64{0, 5}
			}
			x, err := s.SolveAdd(rhs)
			if err != nil {
				return err
			}
			assert.InDelta(t, 4.0, x[0], 1e-12, "mode=%s", mode)
			assert.InDelta(t, 3.0, x[1], 1e-12, "mode=%s", mode)
			return nil
		})
		require.NoError(t, err, "mode=%s", mode)
	}
}

func TestSchurSolverSingularReachesEveryRank(t *testing.T) {
	// Zero pivot column. In RootOnly mode only rank 0 factors, so the
	// failure travels through the status broadcast.
	for _, mode := range []SchurMode{Redundant, RootOnly} {
		err := comm.Run(2, func(c *comm.Comm) error {
			s := NewSchurSolver(c, 2, mode)
			if err := s.Assemble([]int{0, 0, 1, 1}, []float64{0, 1}); err != nil {
				return err
			}
			err := s.Factor()
			assert.True(t, errors.Is(err, ErrSingular), "mode=%s rank=%d: %v", mode, c.Rank(), err)
			return nil
		})
		require.NoError(t, err, "mode=%s", mode)
	}
}

func TestSchurSolverRejectsMismatchedTriplets(t *testing.T) {
	err := comm.Run(2, func(c *comm.Comm) error {
		s := NewSchurSolver(c, 2, Redundant)
		err := s.Assemble([]int{0, 0, 1}, []float64{1})
		assert.True(t, errors.Is(err, ErrDimensionMismatch), "got %v", err)
		return nil
	})
	require.NoError(t, err)
}

func TestSchurSolverRejectsOutOfRangeEntry(t *testing.T) {
	err := comm.Run(2, func(c *comm.Comm) error {
		s := NewSchurSolver(c, 2, Redundant)
		err := s.Assemble([]int{5, 0}, []float64{1})
		assert.True(t, errors.Is(err, ErrDimensionMismatch), "got %v", err)
		return nil
	})
	require.NoError(t, err)
}

func TestSchurSolverSolveBeforeFactor(t *testing.T) {
	err := comm.Run(1, func(c *comm.Comm) error {
		s := NewSchurSolver(c, 2, Redundant)
		if err := s.Assemble([]int{0, 0, 1, 1}, []float64{1, 1}); err != nil {
			return err
		}
		_, err := s.SolveAdd([]float64{1, 1})
		assert.True(t, errors.Is(err, ErrNotFactored), "got %v", err)
		return nil
	})
	require.NoError(t, err)
}

func TestSchurSolverRootSolveFailureReachesEveryRank(t *testing.T) {
	// Only rank 0 holds the factorization in RootOnly mode; a solve-time
	// failure there must come back as an error everywhere, well inside
	// the receive timeout, not as a stranded broadcast.
	w, err := comm.NewWorld(2)
	require.NoError(t, err)
	w.SetTimeout(200 * time.Millisecond)
	err = w.Run(func(c *comm.Comm) error {
		s := NewSchurSolver(c, 2, RootOnly)
		if err := s.Assemble([]int{0, 0, 1, 1}, []float64{1, 1}); err != nil {
			return err
		}
		_, serr := s.SolveAdd([]float64{1, 1})
		require.Error(t, serr, "rank %d", c.Rank())
		assert.False(t, errors.Is(serr, comm.ErrTimeout), "rank %d: %v", c.Rank(), serr)
		if c.Rank() == 0 {
			assert.True(t, errors.Is(serr, ErrNotFactored), "got %v", serr)
		} else {
			assert.True(t, errors.Is(serr, ErrSingular), "got %v", serr)
		}
		return nil
	})
	require.NoError(t, err)
}
