// Package ordering provides fill-reducing permutations for sparse
// factorization. A Func returns the permutation as new position to old
// index over the adjacency pattern rowp/cols.
package ordering

import (
	"fmt"
	"sort"
)

// Func computes an ordering of n vertices from their adjacency. The
// returned slice p reads "position k holds old vertex p[k]".
type Func func(n int, rowp, cols []int) ([]int, error)

func validate(n int, rowp, cols []int) error {
	if n < 0 || len(rowp) != n+1 {
		return fmt.Errorf("ordering: rowp length %d for %d vertices", len(rowp), n)
	}
	if rowp[0] != 0 || len(cols) != rowp[n] {
		return fmt.Errorf("ordering: cols length %d, rowp ends at %d", len(cols), rowp[n])
	}
	for i := 0; i < n; i++ {
		if rowp[i] > rowp[i+1] {
			return fmt.Errorf("ordering: rowp decreases at vertex %d", i)
		}
	}
	for _, j := range cols {
		if j < 0 || j >= n {
			return fmt.Errorf("ordering: neighbor %d of %d vertices", j, n)
		}
	}
	return nil
}

// Natural keeps the input order.
func Natural(n int, rowp, cols []int) ([]int, error) {
	if err := validate(n, rowp, cols); err != nil {
		return nil, err
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p, nil
}

// RCM is the reverse Cuthill-McKee ordering: breadth-first from a
// minimum-degree vertex of each component, neighbors by increasing
// degree, the whole level structure reversed. Entries are followed as
// given; hand in a symmetric pattern for the usual bandwidth behavior.
func RCM(n int, rowp, cols []int) ([]int, error) {
	if err := validate(n, rowp, cols); err != nil {
		return nil, err
	}
	deg := make([]int, n)
	for i := 0; i < n; i++ {
		deg[i] = rowp[i+1] - rowp[i]
	}
	var (
		visited = make([]bool, n)
		order   = make([]int, 0, n)
		queue   []int
	)
	for len(order) < n {
		// Start the next component at its minimum-degree vertex.
		start := -1
		for i := 0; i < n; i++ {
			if !visited[i] && (start < 0 || deg[i] < deg[start]) {
				start = i
			}
		}
		visited[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			var nbrs []int
			for p := rowp[v]; p < rowp[v+1]; p++ {
				if j := cols[p]; j != v && !visited[j] {
					visited[j] = true
					nbrs = append(nbrs, j)
				}
			}
			sort.Slice(nbrs, func(a, b int) bool {
				if deg[nbrs[a]] != deg[nbrs[b]] {
					return deg[nbrs[a]] < deg[nbrs[b]]
				}
				return nbrs[a] < nbrs[b]
			})
			queue = append(queue, nbrs...)
		}
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
