package bpmat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarMapEvenSplit(t *testing.T) {
	// 10 blocks over 4 ranks: the remainder goes to the low ranks.
	m, err := NewVarMap(4, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Size())
	assert.Equal(t, 10, m.GlobalSize())
	assert.Equal(t, []int{0, 3, 6, 8, 10}, m.Ranges())

	lo, hi := m.OwnedRange(0)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 3, hi)
	lo, hi = m.OwnedRange(3)
	assert.Equal(t, 8, lo)
	assert.Equal(t, 10, hi)
	assert.Equal(t, 3, m.NumOwned(1))
	assert.Equal(t, 2, m.NumOwned(2))
}

func TestVarMapOwner(t *testing.T) {
	m, err := NewVarMap(4, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Owner(0))
	assert.Equal(t, 0, m.Owner(2))
	assert.Equal(t, 1, m.Owner(3))
	assert.Equal(t, 2, m.Owner(7))
	assert.Equal(t, 3, m.Owner(9))
	assert.Equal(t, -1, m.Owner(-1))
	assert.Equal(t, -1, m.Owner(10))

	assert.True(t, m.Owns(1, 5))
	assert.False(t, m.Owns(1, 6))
}

func TestVarMapFromCounts(t *testing.T) {
	// A rank may own nothing; lookups skip it.
	m, err := NewVarMapFromCounts([]int{2, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 2, 5}, m.Ranges())
	assert.Equal(t, 0, m.Owner(1))
	assert.Equal(t, 2, m.Owner(2))
	assert.Equal(t, 0, m.NumOwned(1))
}

func TestVarMapRejectsBadShapes(t *testing.T) {
	_, err := NewVarMap(0, 5)
	assert.Error(t, err)
	_, err = NewVarMap(2, -1)
	assert.Error(t, err)
	_, err = NewVarMapFromCounts([]int{1, -2})
	assert.Error(t, err)
	_, err = NewVarMapFromCounts(nil)
	assert.Error(t, err)
}
