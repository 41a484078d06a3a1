package bpmat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatValidates(t *testing.T) {
	_, err := NewMat(7, 1, 1, []int{0, 1}, []int{0})
	assert.True(t, errors.Is(err, ErrBlockSize))

	_, err = NewMat(2, 2, 2, []int{0, 1}, []int{0})
	assert.True(t, errors.Is(err, ErrDimensionMismatch), "short rowp")

	_, err = NewMat(2, 1, 1, []int{0, 1}, []int{3})
	assert.True(t, errors.Is(err, ErrDimensionMismatch), "column out of range")

	_, err = NewMat(2, 1, 2, []int{0, 2}, []int{1, 1})
	assert.True(t, errors.Is(err, ErrStructuralMismatch), "duplicate block")
}

func TestNewMatSortsColumns(t *testing.T) {
	m, err := NewMat(1, 2, 3, []int{0, 3, 4}, []int{2, 0, 1, 1})
	require.NoError(t, err)
	require.NoError(t, m.AddBlock(0, 2, []float64{5}))
	assert.Equal(t, 5.0, m.At(0, 2))
	assert.Equal(t, 0.0, m.At(0, 1))
	_, ok := m.BlockAt(1, 0)
	assert.False(t, ok)
}

func TestAddValuesScattersElement(t *testing.T) {
	// bs=2 element over blocks {0,2} with the full 2x2 clique stored.
	m, err := NewMat(2, 3, 3, []int{0, 2, 3, 5}, []int{0, 2, 1, 0, 2})
	require.NoError(t, err)
	// Element matrix is 4x4 scalar, row-major; entry (r,c) = 10r + c.
	elem := make([]float64, 16)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			elem[r*4+c] = float64(10*r + c)
		}
	}
	require.NoError(t, m.AddValues([]int{0, 2}, []int{0, 2}, elem))
	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 11.0, m.At(1, 1))
	// Block (0,2) carries the top-right quarter.
	assert.Equal(t, 2.0, m.At(0, 4))
	assert.Equal(t, 13.0, m.At(1, 5))
	// Block (2,0) carries the bottom-left quarter.
	assert.Equal(t, 20.0, m.At(4, 0))
	assert.Equal(t, 31.0, m.At(5, 1))

	// Adding again accumulates.
	require.NoError(t, m.AddValues([]int{0, 2}, []int{0, 2}, elem))
	assert.Equal(t, 22.0, m.At(1, 1))
}

func TestAddValuesSkipsNegative(t *testing.T) {
	m, err := NewMat(1, 2, 2, []int{0, 1, 2}, []int{0, 1})
	require.NoError(t, err)
	elem := []float64{
		1, 2,
		3, 4,
	}
	require.NoError(t, m.AddValues([]int{0, -1}, []int{0, -1}, elem))
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(1, 1))
}

func TestAddValuesOutsidePattern(t *testing.T) {
	m, err := NewMat(1, 2, 2, []int{0, 1, 2}, []int{0, 1})
	require.NoError(t, err)
	err = m.AddValues([]int{0}, []int{1}, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructuralMismatch))
	assert.Contains(t, err.Error(), "(0,1)")
}

func TestAssemblyOrderIndependent(t *testing.T) {
	assemble := func(order []int) []float64 {
		m, err := NewMat(1, 3, 3, []int{0, 2, 5, 7}, []int{0, 1, 0, 1, 2, 1, 2})
		require.NoError(t, err)
		nodes := [][]int{{0, 1}, {1, 2}}
		elem := [][]float64{
			{3, -1, -1, 3},
			{5, -2, -2, 5},
		}
		for _, e := range order {
			require.NoError(t, m.AddValues(nodes[e], nodes[e], elem[e]))
		}
		return append([]float64(nil), m.vals...)
	}
	assert.Equal(t, assemble([]int{0, 1, 0, 1}), assemble([]int{1, 1, 0, 0}))
}

func TestAddWeightValues(t *testing.T) {
	// One averaged variable spread over blocks 0 and 1 with weights 0.5:
	// the single element entry fans out over the 2x2 block square.
	m, err := NewMat(1, 2, 2, []int{0, 2, 4}, []int{0, 1, 0, 1})
	require.NoError(t, err)
	var (
		weights = []float64{0.5, 0.5}
		varp    = []int{0, 2}
		vars    = []int{0, 1}
	)
	require.NoError(t, m.AddWeightValues(weights, varp, vars, []float64{4}))
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.Equal(t, 1.0, m.At(i, j), "(%d,%d)", i, j)
		}
	}
}

func TestMultFamily(t *testing.T) {
	// [2 1; 0 3] as 2 scalar blocks plus one off-diagonal.
	m, err := NewMat(1, 2, 2, []int{0, 2, 3}, []int{0, 1, 1})
	require.NoError(t, err)
	require.NoError(t, m.AddBlock(0, 0, []float64{2}))
	require.NoError(t, m.AddBlock(0, 1, []float64{1}))
	require.NoError(t, m.AddBlock(1, 1, []float64{3}))

	var (
		x = []float64{1, 2}
		y = make([]float64, 2)
	)
	require.NoError(t, m.Mult(x, y))
	assert.Equal(t, []float64{4, 6}, y)

	require.NoError(t, m.MultAdd(x, y))
	assert.Equal(t, []float64{8, 12}, y)

	require.NoError(t, m.MultSub(x, y))
	assert.Equal(t, []float64{4, 6}, y)

	err = m.Mult(x, make([]float64, 3))
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestZeroAndScale(t *testing.T) {
	m, err := NewMat(1, 1, 1, []int{0, 1}, []int{0})
	require.NoError(t, err)
	require.NoError(t, m.AddBlock(0, 0, []float64{3}))
	m.Scale(2)
	assert.Equal(t, 6.0, m.At(0, 0))
	m.Zero()
	assert.Equal(t, 0.0, m.At(0, 0))
}
