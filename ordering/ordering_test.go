package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds the symmetric adjacency of a path graph, self loops
// included.
func chain(n int) (rowp, cols []int) {
	rowp = make([]int, 1, n+1)
	for i := 0; i < n; i++ {
		if i > 0 {
			cols = append(cols, i-1)
		}
		cols = append(cols, i)
		if i < n-1 {
			cols = append(cols, i+1)
		}
		rowp = append(rowp, len(cols))
	}
	return rowp, cols
}

// arrow connects vertex 0 to every other vertex.
func arrow(n int) (rowp, cols []int) {
	rowp = make([]int, 1, n+1)
	for j := 0; j < n; j++ {
		cols = append(cols, j)
	}
	rowp = append(rowp, len(cols))
	for i := 1; i < n; i++ {
		cols = append(cols, 0, i)
		rowp = append(rowp, len(cols))
	}
	return rowp, cols
}

func bandwidth(perm, rowp, cols []int) int {
	pos := make([]int, len(perm))
	for k, v := range perm {
		pos[v] = k
	}
	var bw int
	for i := 0; i+1 < len(rowp); i++ {
		for p := rowp[i]; p < rowp[i+1]; p++ {
			d := pos[i] - pos[cols[p]]
			if d < 0 {
				d = -d
			}
			if d > bw {
				bw = d
			}
		}
	}
	return bw
}

func assertPermutation(t *testing.T, perm []int, n int) {
	t.Helper()
	require.Len(t, perm, n)
	seen := make([]bool, n)
	for _, v := range perm {
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, n)
		require.False(t, seen[v], "vertex %d appears twice", v)
		seen[v] = true
	}
}

func TestNaturalIsIdentity(t *testing.T) {
	rowp, cols := chain(5)
	perm, err := Natural(5, rowp, cols)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, perm)
}

func TestRCMKeepsChainBandwidth(t *testing.T) {
	rowp, cols := chain(9)
	perm, err := RCM(9, rowp, cols)
	require.NoError(t, err)
	assertPermutation(t, perm, 9)
	assert.Equal(t, 1, bandwidth(perm, rowp, cols))
}

func TestRCMImprovesArrowBandwidth(t *testing.T) {
	const n = 8
	rowp, cols := arrow(n)
	nat, err := Natural(n, rowp, cols)
	require.NoError(t, err)
	perm, err := RCM(n, rowp, cols)
	require.NoError(t, err)
	assertPermutation(t, perm, n)
	assert.Less(t, bandwidth(perm, rowp, cols), bandwidth(nat, rowp, cols))
}

func TestRCMCoversDisconnectedComponents(t *testing.T) {
	// Two 2-chains and an isolated vertex.
	rowp := []int{0, 2, 4, 6, 8, 8}
	cols := []int{0, 1, 0, 1, 2, 3, 2, 3}
	perm, err := RCM(5, rowp, cols)
	require.NoError(t, err)
	assertPermutation(t, perm, 5)
}

func TestRCMIsDeterministic(t *testing.T) {
	rowp, cols := arrow(10)
	a, err := RCM(10, rowp, cols)
	require.NoError(t, err)
	b, err := RCM(10, rowp, cols)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOrderingRejectsBadShapes(t *testing.T) {
	_, err := Natural(2, []int{0, 1}, []int{0})
	assert.Error(t, err)
	_, err = RCM(2, []int{0, 1, 1}, []int{5})
	assert.Error(t, err)
	_, err = RCM(2, []int{0, 2, 1}, []int{0, 1})
	assert.Error(t, err)
}
