// Package model ships small reproducible finite-element problems used
// by the command-line driver and the solver tests: a 1D rod chain with
// one scalar unknown per node and a 2D spring lattice with two. Each
// problem carries its element connectivity, per-element stiffness and
// lumped mass, and the nodes its boundary conditions pin.
package model

import (
	"fmt"
	"sort"

	"github.com/eirikurj/tacs/bpmat"
	"github.com/eirikurj/tacs/comm"
)

// Problem is a fully determined FE model: nodes with a fixed block
// size, elements as node lists with dense stiffness and lumped mass,
// and the pinned boundary nodes. Element e is assembled by the process
// owning its first node.
type Problem struct {
	Name      string
	BlockSize int
	NumNodes  int
	Elems     [][]int     // node indices per element
	Ke        [][]float64 // dense element stiffness, row-major over element DOFs
	Me        [][]float64 // lumped element mass, one diagonal entry per element DOF
	Fixed     []int       // nodes pinned by the boundary conditions

	load func(node, comp int) float64
}

// NewRod builds a 1D rod of n nodes and n-1 two-node elements, one
// unknown per node. Element stiffness varies along the rod so assembly
// mistakes cannot cancel; node 0 is pinned.
func NewRod(n int) (*Problem, error) {
	if n < 2 {
		return nil, fmt.Errorf("model: rod needs at least 2 nodes, have %d", n)
	}
	p := &Problem{
		Name:      "rod",
		BlockSize: 1,
		NumNodes:  n,
		Fixed:     []int{0},
		load:      func(int, int) float64 { return 1 },
	}
	for e := 0; e < n-1; e++ {
		k := 1 + float64(e%3)/2
		p.Elems = append(p.Elems, []int{e, e + 1})
		p.Ke = append(p.Ke, []float64{k, -k, -k, k})
		p.Me = append(p.Me, []float64{0.5, 0.5})
	}
	return p, nil
}

// NewGrid builds an nx by ny lattice of nodes joined by two-node spring
// elements along both directions, two components per node. Every spring
// acts on both components, the left column is pinned, and the load
// pulls the second component.
func NewGrid(nx, ny int) (*Problem, error) {
	if nx < 2 || ny < 2 {
		return nil, fmt.Errorf("model: grid needs at least 2x2 nodes, have %dx%d", nx, ny)
	}
	p := &Problem{
		Name:      "grid",
		BlockSize: 2,
		NumNodes:  nx * ny,
		load: func(_, comp int) float64 {
			if comp == 1 {
				return -1
			}
			return 0
		},
	}
	ke := []float64{
		1, 0, -1, 0,
		0, 1, 0, -1,
		-1, 0, 1, 0,
		0, -1, 0, 1,
	}
	me := []float64{0.5, 0.5, 0.5, 0.5}
	addElem := func(a, b int) {
		p.Elems = append(p.Elems, []int{a, b})
		p.Ke = append(p.Ke, ke)
		p.Me = append(p.Me, me)
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx-1; i++ {
			addElem(j*nx+i, j*nx+i+1)
		}
	}
	for j := 0; j < ny-1; j++ {
		for i := 0; i < nx; i++ {
			addElem(j*nx+i, (j+1)*nx+i)
		}
	}
	for j := 0; j < ny; j++ {
		p.Fixed = append(p.Fixed, j*nx)
	}
	return p, nil
}

// NumElems returns the element count.
func (p *Problem) NumElems() int { return len(p.Elems) }

// Renumber relabels the nodes so new node k is old node perm[k], the
// shape a graph partition produces. Element matrices are untouched;
// connectivity, fixed nodes and the load follow the relabeling.
func (p *Problem) Renumber(perm []int) (*Problem, error) {
	if len(perm) != p.NumNodes {
		return nil, fmt.Errorf("model: permutation over %d nodes, problem has %d", len(perm), p.NumNodes)
	}
	inv := make([]int, p.NumNodes)
	for i := range inv {
		inv[i] = -1
	}
	for k, old := range perm {
		if old < 0 || old >= p.NumNodes || inv[old] != -1 {
			return nil, fmt.Errorf("model: not a permutation at position %d", k)
		}
		inv[old] = k
	}
	q := &Problem{
		Name:      p.Name,
		BlockSize: p.BlockSize,
		NumNodes:  p.NumNodes,
		Ke:        p.Ke,
		Me:        p.Me,
	}
	q.Elems = make([][]int, len(p.Elems))
	for e, elem := range p.Elems {
		ne := make([]int, len(elem))
		for a, g := range elem {
			ne[a] = inv[g]
		}
		q.Elems[e] = ne
	}
	q.Fixed = make([]int, len(p.Fixed))
	for i, g := range p.Fixed {
		q.Fixed[i] = inv[g]
	}
	load := p.load
	q.load = func(node, comp int) float64 { return load(perm[node], comp) }
	return q, nil
}

// ElemOwner returns the rank assembling element e, the owner of its
// first node.
func (p *Problem) ElemOwner(vm *bpmat.VarMap, e int) int {
	return vm.Owner(p.Elems[e][0])
}

// BCs returns the map pinning every component of the fixed nodes to
// zero.
func (p *Problem) BCs() *bpmat.BCMap {
	bcs := bpmat.NewBCMap()
	for _, node := range p.Fixed {
		for c := 0; c < p.BlockSize; c++ {
			bcs.AddDirichlet(node, c, 0)
		}
	}
	return bcs
}

// MassBCs zeroes the fixed rows and columns of the mass matrix with a
// zero diagonal weight, so pinned DOFs carry no inertia and attach no
// finite eigenvalue to the pencil.
func (p *Problem) MassBCs() *bpmat.BCMap {
	bcs := bpmat.NewBCMap()
	for _, node := range p.Fixed {
		for c := 0; c < p.BlockSize; c++ {
			bcs.Add(node, c, 0, 0)
		}
	}
	return bcs
}

// FillLoad writes the problem's reference load into the owned segment
// of v. The load is a function of the global node index alone, so every
// process count produces the same right-hand side.
func (p *Problem) FillLoad(rank int, v *bpmat.Vec) {
	lo, hi := v.Map().OwnedRange(rank)
	for g := lo; g < hi; g++ {
		for c := 0; c < p.BlockSize; c++ {
			v.SetOwned(g, c, p.load(g, c))
		}
	}
}

func (p *Problem) checkMap(vm *bpmat.VarMap) error {
	if vm.GlobalSize() != p.NumNodes {
		return fmt.Errorf("model: %s has %d nodes, map carries %d", p.Name, p.NumNodes, vm.GlobalSize())
	}
	return nil
}

// assembledElems returns the elements rank assembles.
func (p *Problem) assembledElems(vm *bpmat.VarMap, rank int) []int {
	var out []int
	for e := range p.Elems {
		if p.ElemOwner(vm, e) == rank {
			out = append(out, e)
		}
	}
	return out
}

func sortedSet(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// BuildFEMat assembles the stiffness into a Schur-complement matrix.
// Ghosts are the off-rank nodes of the elements this rank assembles;
// the local connectivity spans those elements plus an explicit diagonal
// for every local block, so owned nodes whose elements all live
// elsewhere still carry their interface diagonal.
func (p *Problem) BuildFEMat(c *comm.Comm, vm *bpmat.VarMap,
	order func(n int, rowp, cols []int) ([]int, error), mode bpmat.SchurMode) (*bpmat.ScMat, error) {
	if err := p.checkMap(vm); err != nil {
		return nil, err
	}
	var (
		rank   = c.Rank()
		lo, hi = vm.OwnedRange(rank)
		nown   = hi - lo
		mine   = p.assembledElems(vm, rank)
		gset   = make(map[int]struct{})
	)
	for _, e := range mine {
		for _, g := range p.Elems[e] {
			if g < lo || g >= hi {
				gset[g] = struct{}{}
			}
		}
	}
	ghosts := sortedSet(gset)

	local := make(map[int]int, nown+len(ghosts))
	for g := lo; g < hi; g++ {
		local[g] = g - lo
	}
	for i, g := range ghosts {
		local[g] = nown + i
	}

	nloc := nown + len(ghosts)
	adj := make([]map[int]struct{}, nloc)
	for i := range adj {
		adj[i] = map[int]struct{}{i: {}}
	}
	for _, e := range mine {
		for _, ga := range p.Elems[e] {
			for _, gb := range p.Elems[e] {
				adj[local[ga]][local[gb]] = struct{}{}
			}
		}
	}
	rowp, cols := compress(adj)

	m, err := bpmat.NewFEMat(c, vm, p.BlockSize, ghosts, rowp, cols, order, mode)
	if err != nil {
		return nil, err
	}
	for _, e := range mine {
		if err := m.AddValues(p.Elems[e], p.Elems[e], p.Ke[e]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// sharedGhosts returns the off-rank nodes of every element touching one
// of rank's owned rows. Both row-distributed builders use this set, so a
// stiffness and a mass matrix over the same map produce interchangeable
// vector layouts.
func (p *Problem) sharedGhosts(vm *bpmat.VarMap, rank int) []int {
	var (
		lo, hi = vm.OwnedRange(rank)
		gset   = make(map[int]struct{})
	)
	for _, elem := range p.Elems {
		touches := false
		for _, g := range elem {
			if g >= lo && g < hi {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		for _, g := range elem {
			if g < lo || g >= hi {
				gset[g] = struct{}{}
			}
		}
	}
	return sortedSet(gset)
}

// BuildDistMat assembles the stiffness into the row-distributed matrix.
// The local pattern covers every element contribution to this rank's
// rows, whichever rank assembles it, so the staged rows exchanged at
// FinishAssembly always land on structure.
func (p *Problem) BuildDistMat(c *comm.Comm, vm *bpmat.VarMap) (*bpmat.DistMat, error) {
	if err := p.checkMap(vm); err != nil {
		return nil, err
	}
	var (
		rank   = c.Rank()
		lo, hi = vm.OwnedRange(rank)
		nown   = hi - lo
		rowAdj = make([]map[int]struct{}, nown)
	)
	for i := range rowAdj {
		rowAdj[i] = map[int]struct{}{lo + i: {}}
	}
	for _, elem := range p.Elems {
		touches := false
		for _, g := range elem {
			if g >= lo && g < hi {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		for _, ga := range elem {
			if ga < lo || ga >= hi {
				continue
			}
			for _, gb := range elem {
				rowAdj[ga-lo][gb] = struct{}{}
			}
		}
	}
	ghosts := p.sharedGhosts(vm, rank)
	dist, err := bpmat.NewDistribute(c, vm, p.BlockSize, ghosts)
	if err != nil {
		return nil, err
	}

	adj := make([]map[int]struct{}, nown)
	for i, row := range rowAdj {
		adj[i] = make(map[int]struct{}, len(row))
		for g := range row {
			lj, ok := dist.LocalIndex(g)
			if !ok {
				return nil, fmt.Errorf("model: node %d not local to rank %d", g, rank)
			}
			adj[i][lj] = struct{}{}
		}
	}
	rowp, cols := compress(adj)

	m, err := bpmat.NewDistMat(c, vm, dist, p.BlockSize, rowp, cols)
	if err != nil {
		return nil, err
	}
	for _, e := range p.assembledElems(vm, rank) {
		if err := m.AddValues(p.Elems[e], p.Elems[e], p.Ke[e]); err != nil {
			return nil, err
		}
	}
	if err := m.FinishAssembly(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildMassMat assembles the lumped mass into a diagonal
// row-distributed matrix. The distribution carries the same ghost set
// as BuildDistMat, so stiffness and mass vectors interchange and the
// cross-rank mass contributions staged during assembly always land on
// a ghost of their assembling rank.
func (p *Problem) BuildMassMat(c *comm.Comm, vm *bpmat.VarMap) (*bpmat.DistMat, error) {
	if err := p.checkMap(vm); err != nil {
		return nil, err
	}
	var (
		rank = c.Rank()
		bs   = p.BlockSize
		nown = vm.NumOwned(rank)
		rowp = make([]int, nown+1)
		cols = make([]int, nown)
	)
	for i := 0; i < nown; i++ {
		rowp[i+1] = i + 1
		cols[i] = i
	}
	dist, err := bpmat.NewDistribute(c, vm, bs, p.sharedGhosts(vm, rank))
	if err != nil {
		return nil, err
	}
	m, err := bpmat.NewDistMat(c, vm, dist, bs, rowp, cols)
	if err != nil {
		return nil, err
	}
	block := make([]float64, bs*bs)
	for _, e := range p.assembledElems(vm, rank) {
		for a, g := range p.Elems[e] {
			for i := range block {
				block[i] = 0
			}
			for cc := 0; cc < bs; cc++ {
				block[cc*bs+cc] = p.Me[e][a*bs+cc]
			}
			if err := m.AddValues([]int{g}, []int{g}, block); err != nil {
				return nil, err
			}
		}
	}
	if err := m.FinishAssembly(); err != nil {
		return nil, err
	}
	return m, nil
}

// compress flattens per-row adjacency sets into CSR with sorted columns.
func compress(adj []map[int]struct{}) (rowp, cols []int) {
	rowp = make([]int, 1, len(adj)+1)
	for _, row := range adj {
		cols = append(cols, sortedSet(row)...)
		rowp = append(rowp, len(cols))
	}
	return rowp, cols
}
