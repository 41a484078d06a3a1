// Package partition distributes finite-element nodes across processes.
// It builds the node adjacency graph from element connectivity and
// hands it to METIS k-way partitioning; the resulting assignment is
// renumbered contiguously per part so it can seed contiguous ownership
// ranges.
package partition

import (
	"fmt"
	"log"
	"sort"

	"github.com/james-bowman/sparse"
	metis "github.com/notargets/go-metis"
)

// Graph is the node adjacency of an element connectivity: a vertex per
// node, an edge where two nodes share an element, weighted by how many
// elements they share.
type Graph struct {
	nn     int
	xadj   []int32
	adjncy []int32
	ewgt   []int32
}

// BuildGraph accumulates the element cliques through a DOK matrix so
// repeated node pairs collapse into one weighted edge, then compresses
// to the CSR arrays METIS consumes. Rows come out with sorted neighbor
// lists.
func BuildGraph(nnodes int, elems [][]int) (*Graph, error) {
	if nnodes <= 0 {
		return nil, fmt.Errorf("partition: graph over %d nodes", nnodes)
	}
	dok := sparse.NewDOK(nnodes, nnodes)
	for e, nodes := range elems {
		for _, i := range nodes {
			if i < 0 || i >= nnodes {
				return nil, fmt.Errorf("partition: element %d names node %d of %d", e, i, nnodes)
			}
			for _, j := range nodes {
				if i != j {
					dok.Set(i, j, dok.At(i, j)+1)
				}
			}
		}
	}
	var (
		csr = dok.ToCSR()
		g   = &Graph{nn: nnodes, xadj: make([]int32, 1, nnodes+1)}
	)
	type edge struct {
		j int
		w int32
	}
	for i := 0; i < nnodes; i++ {
		var row []edge
		csr.DoRowNonZero(i, func(_, j int, v float64) {
			row = append(row, edge{j: j, w: int32(v)})
		})
		sort.Slice(row, func(a, b int) bool { return row[a].j < row[b].j })
		for _, e := range row {
			g.adjncy = append(g.adjncy, int32(e.j))
			g.ewgt = append(g.ewgt, e.w)
		}
		g.xadj = append(g.xadj, int32(len(g.adjncy)))
	}
	return g, nil
}

// NumNodes returns the vertex count.
func (g *Graph) NumNodes() int { return g.nn }

// NumEdges returns the undirected edge count.
func (g *Graph) NumEdges() int { return len(g.adjncy) / 2 }

// Neighbors returns the sorted adjacency of node i.
func (g *Graph) Neighbors(i int) []int {
	out := make([]int, 0, g.xadj[i+1]-g.xadj[i])
	for k := g.xadj[i]; k < g.xadj[i+1]; k++ {
		out = append(out, int(g.adjncy[k]))
	}
	return out
}

// Weight returns the shared-element count between i and its sorted
// neighbor list entry n.
func (g *Graph) Weight(i, n int) int32 { return g.ewgt[int(g.xadj[i])+n] }

// Config controls the METIS call.
type Config struct {
	Parts          int
	Imbalance      float32 // allowed load imbalance, 1.05 = 5%
	MinimizeVolume bool    // communication volume objective instead of edge cut
	UseEdgeWeights bool    // weight edges by shared-element count
	VertexWeights  []int32 // optional per-node load, length NumNodes
}

// DefaultConfig partitions into parts with 5% imbalance, edge-cut
// objective and shared-element edge weights.
func DefaultConfig(parts int) Config {
	return Config{Parts: parts, Imbalance: 1.05, UseEdgeWeights: true}
}

// Partition assigns every node to one of cfg.Parts parts and logs the
// resulting balance and cut. A single part needs no METIS call.
func (g *Graph) Partition(cfg Config) ([]int, error) {
	if cfg.Parts < 1 {
		return nil, fmt.Errorf("partition: %d parts requested", cfg.Parts)
	}
	if cfg.VertexWeights != nil && len(cfg.VertexWeights) != g.nn {
		return nil, fmt.Errorf("partition: %d vertex weights for %d nodes", len(cfg.VertexWeights), g.nn)
	}
	part := make([]int, g.nn)
	if cfg.Parts == 1 {
		g.logStats(part, 1, 0)
		return part, nil
	}
	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("partition: METIS options: %w", err)
	}
	if cfg.MinimizeVolume {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	imb := cfg.Imbalance
	if imb == 0 {
		imb = 1.05
	}
	ubvec := []float32{imb}
	var ewgt []int32
	if cfg.UseEdgeWeights {
		ewgt = g.ewgt
	}
	p32, objval, err := metis.PartGraphKwayWeighted(
		g.xadj, g.adjncy, cfg.VertexWeights, ewgt,
		int32(cfg.Parts), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("partition: METIS k-way failed: %w", err)
	}
	for i, p := range p32 {
		part[i] = int(p)
	}
	g.logStats(part, cfg.Parts, objval)
	return part, nil
}

func (g *Graph) logStats(part []int, nparts int, objval int32) {
	counts := make([]int, nparts)
	for _, p := range part {
		counts[p]++
	}
	var cut int
	for i := 0; i < g.nn; i++ {
		for k := g.xadj[i]; k < g.xadj[i+1]; k++ {
			if j := int(g.adjncy[k]); j > i && part[i] != part[j] {
				cut++
			}
		}
	}
	log.Printf("partition: %d nodes into %d parts, objective %d, cut edges %d", g.nn, nparts, objval, cut)
	for p, n := range counts {
		log.Printf("partition:   part %d: %d nodes", p, n)
	}
}

// Renumber orders nodes contiguously by part: position k of the
// returned permutation holds old node perm[k], parts ascending and the
// original order kept inside each part. counts[p] gives the nodes per
// part, ready for contiguous ownership ranges.
func Renumber(part []int, nparts int) (perm []int, counts []int, err error) {
	counts = make([]int, nparts)
	for i, p := range part {
		if p < 0 || p >= nparts {
			return nil, nil, fmt.Errorf("partition: node %d assigned part %d of %d", i, p, nparts)
		}
		counts[p]++
	}
	offs := make([]int, nparts)
	for p := 1; p < nparts; p++ {
		offs[p] = offs[p-1] + counts[p-1]
	}
	perm = make([]int, len(part))
	for i, p := range part {
		perm[offs[p]] = i
		offs[p]++
	}
	return perm, counts, nil
}
