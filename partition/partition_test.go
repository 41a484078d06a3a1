package partition

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metisAvailable reports whether the METIS shared library is linked in
// this environment. Gate the k-way tests on it so the pure-Go paths
// still run everywhere.
func metisAvailable() bool {
	return os.Getenv("METIS_TESTS") != ""
}

func chainElems(n int) [][]int {
	elems := make([][]int, n-1)
	for i := range elems {
		elems[i] = []int{i, i + 1}
	}
	return elems
}

func TestBuildGraphWeightsSharedEdges(t *testing.T) {
	// Two triangles sharing edge 1-2: that edge carries weight 2, the
	// boundary edges weight 1.
	g, err := BuildGraph(4, [][]int{{0, 1, 2}, {1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 5, g.NumEdges())
	assert.Equal(t, []int{1, 2}, g.Neighbors(0))
	assert.Equal(t, []int{0, 2, 3}, g.Neighbors(1))

	nbr := g.Neighbors(1)
	for n, j := range nbr {
		want := int32(1)
		if j == 2 {
			want = 2
		}
		assert.Equal(t, want, g.Weight(1, n), "edge 1-%d", j)
	}
}

func TestBuildGraphKeepsIsolatedNodes(t *testing.T) {
	g, err := BuildGraph(3, [][]int{{0, 1}})
	require.NoError(t, err)

	assert.Equal(t, 1, g.NumEdges())
	assert.Empty(t, g.Neighbors(2))
}

func TestBuildGraphRejectsBadInput(t *testing.T) {
	_, err := BuildGraph(0, nil)
	assert.Error(t, err)

	_, err = BuildGraph(4, [][]int{{0, 1, 4}})
	assert.Error(t, err)

	_, err = BuildGraph(4, [][]int{{0, -1}})
	assert.Error(t, err)
}

func TestPartitionSinglePartIsTrivial(t *testing.T) {
	g, err := BuildGraph(6, chainElems(6))
	require.NoError(t, err)

	part, err := g.Partition(DefaultConfig(1))
	require.NoError(t, err)
	assert.Equal(t, make([]int, 6), part)
}

func TestPartitionRejectsBadConfig(t *testing.T) {
	g, err := BuildGraph(4, chainElems(4))
	require.NoError(t, err)

	_, err = g.Partition(DefaultConfig(0))
	assert.Error(t, err)

	cfg := DefaultConfig(2)
	cfg.VertexWeights = []int32{1, 1}
	_, err = g.Partition(cfg)
	assert.Error(t, err)
}

func TestPartitionTwoParts(t *testing.T) {
	if !metisAvailable() {
		t.Skip("METIS not available")
	}
	g, err := BuildGraph(8, chainElems(8))
	require.NoError(t, err)

	part, err := g.Partition(DefaultConfig(2))
	require.NoError(t, err)
	require.Len(t, part, 8)

	counts := make([]int, 2)
	for i, p := range part {
		require.Contains(t, []int{0, 1}, p, "node %d", i)
		counts[p]++
	}
	assert.NotZero(t, counts[0])
	assert.NotZero(t, counts[1])
}

func TestRenumberGroupsByPart(t *testing.T) {
	perm, counts, err := Renumber([]int{0, 1, 0, 1, 2}, 3)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, counts)
	assert.Equal(t, []int{0, 2, 1, 3, 4}, perm)

	seen := make([]bool, len(perm))
	for _, old := range perm {
		require.False(t, seen[old])
		seen[old] = true
	}
}

func TestRenumberRejectsOutOfRange(t *testing.T) {
	_, _, err := Renumber([]int{0, 3}, 3)
	assert.Error(t, err)

	_, _, err = Renumber([]int{-1}, 2)
	assert.Error(t, err)
}
