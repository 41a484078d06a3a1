package bpmat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eirikurj/tacs/comm"
)

func denseOnes(t *testing.T, bs, nb int) *Mat {
	t.Helper()
	var (
		rowp = make([]int, nb+1)
		cols []int
	)
	for i := 0; i < nb; i++ {
		for j := 0; j < nb; j++ {
			cols = append(cols, j)
		}
		rowp[i+1] = len(cols)
	}
	m, err := NewMat(bs, nb, nb, rowp, cols)
	require.NoError(t, err)
	one := make([]float64, bs*bs)
	for i := range one {
		one[i] = 1
	}
	for i := 0; i < nb; i++ {
		for j := 0; j < nb; j++ {
			require.NoError(t, m.AddBlock(i, j, one))
		}
	}
	return m
}

func TestApplyToMat(t *testing.T) {
	m := denseOnes(t, 2, 2)
	bcs := NewBCMap()
	bcs.Add(1, 0, 3, 2)
	require.NoError(t, bcs.ApplyToMat(m))

	// Scalar row 2 and column 2 are gone; the weight sits on the
	// diagonal; everything else is untouched.
	assert.Equal(t, 0.0, m.At(2, 0))
	assert.Equal(t, 0.0, m.At(2, 3))
	assert.Equal(t, 2.0, m.At(2, 2))
	assert.Equal(t, 0.0, m.At(0, 2))
	assert.Equal(t, 0.0, m.At(3, 2))
	assert.Equal(t, 1.0, m.At(3, 3))
	assert.Equal(t, 1.0, m.At(0, 0))
}

func TestAddOverwritesDuplicate(t *testing.T) {
	bcs := NewBCMap()
	bcs.Add(3, 0, 1, 1)
	bcs.Add(3, 1, 2, 1)
	bcs.Add(3, 0, 2.5, 4)
	require.Equal(t, 2, bcs.Len())
	assert.Equal(t, BC{Block: 3, Comp: 0, Value: 2.5, Weight: 4}, bcs.All()[0])
}

func TestApplyToMatRejectsBadConstraint(t *testing.T) {
	m := denseOnes(t, 2, 2)
	bcs := NewBCMap()
	bcs.Add(5, 0, 0, 1)
	err := bcs.ApplyToMat(m)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	bcs = NewBCMap()
	bcs.Add(0, 3, 0, 1)
	err = bcs.ApplyToMat(m)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestConstrainedSolveReproducesValue(t *testing.T) {
	// 1D chain with the left end pinned to 5 through weight 2.
	a := blockTridiag(t, 1, 3)
	a.Zero()
	require.NoError(t, a.AddBlock(0, 0, []float64{2}))
	require.NoError(t, a.AddBlock(1, 1, []float64{2}))
	require.NoError(t, a.AddBlock(2, 2, []float64{2}))
	require.NoError(t, a.AddBlock(0, 1, []float64{-1}))
	require.NoError(t, a.AddBlock(1, 0, []float64{-1}))
	require.NoError(t, a.AddBlock(1, 2, []float64{-1}))
	require.NoError(t, a.AddBlock(2, 1, []float64{-1}))

	bcs := NewBCMap()
	bcs.Add(0, 0, 5, 2)
	require.NoError(t, bcs.ApplyToMat(a))

	f, err := NewFactorMat(a, -1)
	require.NoError(t, err)
	require.NoError(t, f.CopyValues(a))
	require.NoError(t, f.Factor())

	b := []float64{0, 1, 1}
	b[0] = 2 * 5 // weight*value
	x := make([]float64, 3)
	require.NoError(t, f.ApplySolve(b, x))
	assert.InDelta(t, 5.0, x[0], 1e-12)
	assert.InDelta(t, 1.0, x[1], 1e-12)
	assert.InDelta(t, 1.0, x[2], 1e-12)
}

func TestZeroWeightSingularAtFactor(t *testing.T) {
	a := denseOnes(t, 1, 2)
	bcs := NewBCMap()
	bcs.Add(1, 0, 7, 0)
	require.NoError(t, bcs.ApplyToMat(a))

	f, err := NewFactorMat(a, -1)
	require.NoError(t, err)
	require.NoError(t, f.CopyValues(a))
	err = f.Factor()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular))
	assert.Contains(t, err.Error(), "block row 1")
}

func TestApplyToVecs(t *testing.T) {
	err := comm.Run(2, func(c *comm.Comm) error {
		vm, err := NewVarMap(2, 4)
		if err != nil {
			return err
		}
		bcs := NewBCMap()
		bcs.Add(0, 1, 5, 2)
		bcs.AddDirichlet(3, 0, -1)

		rhs := NewVec(c, vm, 2, nil)
		bcs.ApplyToRHS(rhs)
		full, err := rhs.Gather()
		if err != nil {
			return err
		}
		assert.Equal(t, 10.0, full[1])
		assert.Equal(t, -1.0, full[6])

		sol := NewVec(c, vm, 2, nil)
		bcs.ApplyToSolution(sol)
		full, err = sol.Gather()
		if err != nil {
			return err
		}
		assert.Equal(t, 5.0, full[1])
		assert.Equal(t, -1.0, full[6])
		return nil
	})
	require.NoError(t, err)
}
