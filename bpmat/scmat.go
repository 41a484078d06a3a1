package bpmat

import (
	"fmt"

	"github.com/eirikurj/tacs/comm"
)

// SCState tracks how far a Schur-complement factorization has
// progressed. Failures leave the matrix at the last completed stage.
type SCState int

const (
	Unfactored SCState = iota
	InteriorFactored
	InterfaceAssembled
	Ready
)

func (s SCState) String() string {
	switch s {
	case Unfactored:
		return "Unfactored"
	case InteriorFactored:
		return "InteriorFactored"
	case InterfaceAssembled:
		return "InterfaceAssembled"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("SCState(%d)", int(s))
	}
}

// ecol locates the E entries of one interface block column.
type ecol struct {
	row int // interior block row position
	idx int // entry index in E
}

// ScMat is the Schur-complement matrix: the local rows split into
// interior blocks, which never couple another rank's DOFs, and interface
// blocks, which include replicas of off-rank blocks. Values live in the
// four quadrants
//
//	B (interior x interior)   E (interior x interface)
//	F (interface x interior)  C (interface x interface)
//
// Factor eliminates B exactly, forms the local Schur complement
// S = C - F B^-1 E, and assembles the global interface system with
// coincident entries summed across ranks.
type ScMat struct {
	c    *comm.Comm
	vm   *VarMap
	bs   int
	dist *Distribute

	nown int
	nloc int

	isIfc []bool
	bpos  []int // local block -> interior position, -1 if interface
	cpos  []int // local block -> interface position, -1 if interior
	bloc  []int // interior position -> local block
	cloc  []int // interface position -> local block
	gIfc  []int // interface position -> global interface block index

	B, E, F, C *Mat
	Bf         *Mat
	eCols      [][]ecol
	solver     *SchurSolver
	state      SCState
}

// NewScMat builds the Schur-complement matrix over the local block
// connectivity rowp/cols. Local numbering is owned blocks in global
// order followed by the distribution's ghosts; isIface marks interface
// blocks. Every ghost must be interface, and interior blocks may not
// couple ghosts in either direction; either violation breaks the
// partition invariant and fails construction. interiorOrder, when not
// nil, permutes the interior blocks (position -> local block) for fill
// reduction. Collective: the global interface numbering is derived from
// an allgather of owned-interface lists.
func NewScMat(c *comm.Comm, vm *VarMap, bs int, dist *Distribute, isIface []bool,
	rowp, cols []int, interiorOrder []int, mode SchurMode) (*ScMat, error) {
	var (
		rank = c.Rank()
		nown = vm.NumOwned(rank)
		nloc = nown + dist.NumGhosts()
	)
	if len(isIface) != nloc || len(rowp) != nloc+1 {
		return nil, fmt.Errorf("%w: %d local blocks, %d interface flags, rowp length %d",
			ErrDimensionMismatch, nloc, len(isIface), len(rowp))
	}
	for lb := nown; lb < nloc; lb++ {
		if !isIface[lb] {
			return nil, fmt.Errorf("%w: ghost block %d marked interior",
				ErrStructuralMismatch, dist.Ghosts()[lb-nown])
		}
	}
	m := &ScMat{
		c:     c,
		vm:    vm,
		bs:    bs,
		dist:  dist,
		nown:  nown,
		nloc:  nloc,
		isIfc: append([]bool(nil), isIface...),
		bpos:  make([]int, nloc),
		cpos:  make([]int, nloc),
	}
	for lb := 0; lb < nloc; lb++ {
		m.bpos[lb], m.cpos[lb] = -1, -1
		if isIface[lb] {
			m.cpos[lb] = len(m.cloc)
			m.cloc = append(m.cloc, lb)
		}
	}
	if interiorOrder != nil {
		seen := make(map[int]bool, len(interiorOrder))
		for _, lb := range interiorOrder {
			if lb < 0 || lb >= nloc || isIface[lb] || seen[lb] {
				return nil, fmt.Errorf("%w: interior ordering names block %d twice or outside the interior set",
					ErrStructuralMismatch, lb)
			}
			seen[lb] = true
		}
		if len(interiorOrder) != nloc-len(m.cloc) {
			return nil, fmt.Errorf("%w: interior ordering covers %d of %d interior blocks",
				ErrDimensionMismatch, len(interiorOrder), nloc-len(m.cloc))
		}
		m.bloc = append([]int(nil), interiorOrder...)
	} else {
		for lb := 0; lb < nloc; lb++ {
			if !isIface[lb] {
				m.bloc = append(m.bloc, lb)
			}
		}
	}
	for p, lb := range m.bloc {
		m.bpos[lb] = p
	}

	// Split the connectivity into the quadrant patterns, checking the
	// partition invariant along the way.
	var (
		nb                         = len(m.bloc)
		nc                         = len(m.cloc)
		rowsB, rowsE, rowsF, rowsC = make([][]int, nb), make([][]int, nb), make([][]int, nc), make([][]int, nc)
	)
	for i := 0; i < nloc; i++ {
		for p := rowp[i]; p < rowp[i+1]; p++ {
			j := cols[p]
			if j < 0 || j >= nloc {
				return nil, fmt.Errorf("%w: connectivity column %d of %d local blocks",
					ErrDimensionMismatch, j, nloc)
			}
			if !isIface[i] && j >= nown {
				return nil, fmt.Errorf("%w: interior block %d couples ghost block %d",
					ErrStructuralMismatch, i, dist.Ghosts()[j-nown])
			}
			if i >= nown && !isIface[j] {
				return nil, fmt.Errorf("%w: ghost block %d couples interior block %d",
					ErrStructuralMismatch, dist.Ghosts()[i-nown], j)
			}
			switch {
			case !isIface[i] && !isIface[j]:
				rowsB[m.bpos[i]] = append(rowsB[m.bpos[i]], m.bpos[j])
			case !isIface[i]:
				rowsE[m.bpos[i]] = append(rowsE[m.bpos[i]], m.cpos[j])
			case isIface[j]:
				rowsC[m.cpos[i]] = append(rowsC[m.cpos[i]], m.cpos[j])
			default:
				rowsF[m.cpos[i]] = append(rowsF[m.cpos[i]], m.bpos[j])
			}
		}
	}
	var err error
	if m.B, err = matFromRows(bs, nb, nb, rowsB); err != nil {
		return nil, err
	}
	if m.E, err = matFromRows(bs, nb, nc, rowsE); err != nil {
		return nil, err
	}
	if m.F, err = matFromRows(bs, nc, nb, rowsF); err != nil {
		return nil, err
	}
	if m.C, err = matFromRows(bs, nc, nc, rowsC); err != nil {
		return nil, err
	}

	// Global interface numbering: owned interface blocks, rank by rank.
	lo, _ := vm.OwnedRange(rank)
	var ownedIfc []int
	for _, lb := range m.cloc {
		if lb < nown {
			ownedIfc = append(ownedIfc, lo+lb)
		}
	}
	all, err := c.AllGatherInts(ownedIfc)
	if err != nil {
		return nil, err
	}
	var (
		gmap = make(map[int]int)
		next int
	)
	for _, list := range all {
		for _, gid := range list {
			gmap[gid] = next
			next++
		}
	}
	m.gIfc = make([]int, nc)
	for p, lb := range m.cloc {
		gid := lo + lb
		if lb >= nown {
			gid = dist.Ghosts()[lb-nown]
		}
		gi, ok := gmap[gid]
		if !ok {
			return nil, fmt.Errorf("%w: block %d is interface here but not on its owner",
				ErrStructuralMismatch, gid)
		}
		m.gIfc[p] = gi
	}
	m.solver = NewSchurSolver(c, next*bs, mode)

	// Column access into E, used when forming F B^-1 E.
	m.eCols = make([][]ecol, nc)
	for i := 0; i < nb; i++ {
		for p := m.E.rowp[i]; p < m.E.rowp[i+1]; p++ {
			j := m.E.cols[p]
			m.eCols[j] = append(m.eCols[j], ecol{row: i, idx: p})
		}
	}
	return m, nil
}

func matFromRows(bs, nrows, ncols int, rows [][]int) (*Mat, error) {
	var (
		rowp = make([]int, nrows+1)
		nnz  int
	)
	for i, r := range rows {
		nnz += len(r)
		rowp[i+1] = nnz
	}
	cols := make([]int, 0, nnz)
	for _, r := range rows {
		cols = append(cols, r...)
	}
	return NewMat(bs, nrows, ncols, rowp, cols)
}

// BlockSize returns the scalar components per block.
func (m *ScMat) BlockSize() int { return m.bs }

// State returns the factorization stage.
func (m *ScMat) State() SCState { return m.state }

// Map returns the block ownership map.
func (m *ScMat) Map() *VarMap { return m.vm }

// NumInterface returns the global interface block count.
func (m *ScMat) NumInterface() int { return m.solver.N() / m.bs }

// CreateVec returns a zeroed vector over the matrix's distribution.
func (m *ScMat) CreateVec() *Vec { return m.dist.CreateVec() }

// Zero clears all quadrants and resets the factorization state.
func (m *ScMat) Zero() {
	m.B.Zero()
	m.E.Zero()
	m.F.Zero()
	m.C.Zero()
	m.state = Unfactored
}

// addBlockGlobal routes one block addressed by global indices into its
// quadrant.
func (m *ScMat) addBlockGlobal(gi, gj int, blk []float64) error {
	li, ok := m.dist.LocalIndex(gi)
	if !ok {
		return fmt.Errorf("%w: row block %d is neither owned nor a ghost here", ErrStructuralMismatch, gi)
	}
	lj, ok := m.dist.LocalIndex(gj)
	if !ok {
		return fmt.Errorf("%w: column block %d is neither owned nor a ghost here", ErrStructuralMismatch, gj)
	}
	var err error
	switch {
	case !m.isIfc[li] && !m.isIfc[lj]:
		err = m.B.AddBlock(m.bpos[li], m.bpos[lj], blk)
	case !m.isIfc[li]:
		err = m.E.AddBlock(m.bpos[li], m.cpos[lj], blk)
	case m.isIfc[lj]:
		err = m.C.AddBlock(m.cpos[li], m.cpos[lj], blk)
	default:
		err = m.F.AddBlock(m.cpos[li], m.bpos[lj], blk)
	}
	if err != nil {
		return fmt.Errorf("%w: global block (%d,%d)", ErrStructuralMismatch, gi, gj)
	}
	return nil
}

// AddValues scatters a dense element matrix by global block indices into
// the quadrants. All indices must be owned or ghost blocks of this rank;
// negative indices skip a block row or column. Off-rank rows are
// legitimate here, unlike DistMat: a replica's interface rows carry its
// share of the Schur data and merge during Factor.
func (m *ScMat) AddValues(rows, cols []int, values []float64) error {
	var (
		bs  = m.bs
		ncv = len(cols) * bs
	)
	if len(values) != len(rows)*bs*ncv {
		return fmt.Errorf("%w: element matrix carries %d values, want %d*%d",
			ErrDimensionMismatch, len(values), len(rows)*bs, ncv)
	}
	blk := make([]float64, bs*bs)
	for a, gi := range rows {
		if gi < 0 {
			continue
		}
		for b, gj := range cols {
			if gj < 0 {
				continue
			}
			for r := 0; r < bs; r++ {
				copy(blk[r*bs:(r+1)*bs], values[(a*bs+r)*ncv+b*bs:(a*bs+r)*ncv+b*bs+bs])
			}
			if err := m.addBlockGlobal(gi, gj, blk); err != nil {
				return err
			}
		}
	}
	m.state = Unfactored
	return nil
}

// AddWeightValues is the weighted-variable form of AddValues; see
// Mat.AddWeightValues. Indices in vars are global blocks.
func (m *ScMat) AddWeightValues(weights []float64, varp, vars []int, values []float64) error {
	var (
		bs  = m.bs
		nev = len(varp) - 1
		ncv = nev * bs
	)
	if nev < 0 {
		return fmt.Errorf("%w: empty varp", ErrDimensionMismatch)
	}
	if len(vars) != varp[nev] || len(weights) != len(vars) {
		return fmt.Errorf("%w: %d vars with %d weights", ErrDimensionMismatch, len(vars), len(weights))
	}
	if len(values) != ncv*ncv {
		return fmt.Errorf("%w: element matrix carries %d values, want %d*%d",
			ErrDimensionMismatch, len(values), ncv, ncv)
	}
	blk := make([]float64, bs*bs)
	for a := 0; a < nev; a++ {
		for b := 0; b < nev; b++ {
			for ap := varp[a]; ap < varp[a+1]; ap++ {
				if vars[ap] < 0 {
					continue
				}
				for bp := varp[b]; bp < varp[b+1]; bp++ {
					if vars[bp] < 0 {
						continue
					}
					w := weights[ap] * weights[bp]
					for r := 0; r < bs; r++ {
						for c := 0; c < bs; c++ {
							blk[r*bs+c] = w * values[(a*bs+r)*ncv+b*bs+c]
						}
					}
					if err := m.addBlockGlobal(vars[ap], vars[bp], blk); err != nil {
						return err
					}
				}
			}
		}
	}
	m.state = Unfactored
	return nil
}

// ApplyBCs enforces the registry across the quadrants. Every rank zeroes
// the rows and columns of constrained DOFs it stores, replicas included;
// only the owning rank writes the diagonal weight, so the summed
// interface system carries it exactly once.
func (m *ScMat) ApplyBCs(bcs *BCMap) error {
	var (
		rowB = make(map[int][]bcRef)
		rowE = make(map[int][]bcRef)
		rowF = make(map[int][]bcRef)
		rowC = make(map[int][]bcRef)
		colB = make(map[int][]bcRef)
		colE = make(map[int][]bcRef)
		colF = make(map[int][]bcRef)
		colC = make(map[int][]bcRef)
	)
	for _, bc := range bcs.All() {
		if bc.Comp < 0 || bc.Comp >= m.bs {
			return fmt.Errorf("%w: constraint component %d for bs %d", ErrDimensionMismatch, bc.Comp, m.bs)
		}
		lb, ok := m.dist.LocalIndex(bc.Block)
		if !ok {
			continue
		}
		owned := lb < m.nown
		if !m.isIfc[lb] {
			ref := bcRef{comp: bc.Comp, weight: bc.Weight, diag: true}
			p := m.bpos[lb]
			rowB[p] = append(rowB[p], ref)
			rowE[p] = append(rowE[p], ref)
			colB[p] = append(colB[p], ref)
			colF[p] = append(colF[p], ref)
			continue
		}
		ref := bcRef{comp: bc.Comp, weight: bc.Weight, diag: owned}
		p := m.cpos[lb]
		rowF[p] = append(rowF[p], ref)
		rowC[p] = append(rowC[p], ref)
		colE[p] = append(colE[p], ref)
		colC[p] = append(colC[p], ref)
	}
	m.B.applyLocalBCs(rowB, colB)
	m.E.applyLocalBCs(rowE, colE)
	m.F.applyLocalBCs(rowF, colF)
	m.C.applyLocalBCs(rowC, colC)
	m.state = Unfactored
	return nil
}

// Factor runs the pipeline: exact LU of the interior quadrant, local
// Schur complement S = C - F B^-1 E, global interface assembly with
// coincident entries summed, interface factorization. Collective. On
// failure the state reports the last completed stage and the error names
// the offending block row.
func (m *ScMat) Factor() error {
	var (
		bs = m.bs
		bb = bs * bs
		nb = len(m.bloc)
		nc = len(m.cloc)
	)
	if m.Bf == nil {
		f, err := NewFactorMat(m.B, -1)
		if err != nil {
			return err
		}
		m.Bf = f
	}
	if err := m.Bf.CopyValues(m.B); err != nil {
		return err
	}
	if err := m.Bf.Factor(); err != nil {
		return fmt.Errorf("bpmat: interior factorization: %w", err)
	}
	m.state = InteriorFactored

	// Dense local Schur complement, seeded from C.
	ns := nc * bs
	S := make([]float64, ns*ns)
	for i := 0; i < nc; i++ {
		for p := m.C.rowp[i]; p < m.C.rowp[i+1]; p++ {
			var (
				j   = m.C.cols[p]
				blk = m.C.vals[p*bb : (p+1)*bb]
			)
			for r := 0; r < bs; r++ {
				copy(S[(i*bs+r)*ns+j*bs:(i*bs+r)*ns+j*bs+bs], blk[r*bs:(r+1)*bs])
			}
		}
	}
	var (
		e = make([]float64, nb*bs)
		g = make([]float64, ns)
	)
	for jc := 0; jc < nc; jc++ {
		for c := 0; c < bs; c++ {
			for i := range e {
				e[i] = 0
			}
			for _, ec := range m.eCols[jc] {
				for r := 0; r < bs; r++ {
					e[ec.row*bs+r] = m.E.vals[ec.idx*bb+r*bs+c]
				}
			}
			if err := m.Bf.ApplyFactor(e); err != nil {
				return err
			}
			if err := m.F.Mult(e, g); err != nil {
				return err
			}
			col := jc*bs + c
			for rr := 0; rr < ns; rr++ {
				S[rr*ns+col] -= g[rr]
			}
		}
	}

	// Triplet assembly in global interface scalar numbering. Diagonal
	// entries always go, zero or not, so a zeroed constraint surfaces as
	// a numeric singularity with its row named rather than a structural
	// hole.
	var (
		idx  []int
		vals []float64
	)
	for p := 0; p < nc; p++ {
		for q := 0; q < nc; q++ {
			for r := 0; r < bs; r++ {
				for c := 0; c < bs; c++ {
					v := S[(p*bs+r)*ns+q*bs+c]
					if v == 0 && !(p == q && r == c) {
						continue
					}
					idx = append(idx, m.gIfc[p]*bs+r, m.gIfc[q]*bs+c)
					vals = append(vals, v)
				}
			}
		}
	}
	if err := m.solver.Assemble(idx, vals); err != nil {
		return err
	}
	m.state = InterfaceAssembled
	if err := m.solver.Factor(); err != nil {
		return err
	}
	m.state = Ready
	return nil
}

// Solve computes x with A*x = f. Requires Ready. Collective: the reduced
// right-hand side g = f_C - F B^-1 f_B accumulates across ranks inside
// the interface solve, and every rank receives the interface solution
// for its back-substitution x_B = B^-1 (f_B - E y).
func (m *ScMat) Solve(f, x *Vec) error {
	if m.state != Ready {
		return fmt.Errorf("%w: state %s", ErrNotFactored, m.state)
	}
	var (
		bs = m.bs
		nb = len(m.bloc)
		nc = len(m.cloc)
	)
	if len(f.owned) != m.nown*bs || len(x.owned) != m.nown*bs {
		return fmt.Errorf("%w: solve over %d owned values against f[%d], x[%d]",
			ErrDimensionMismatch, m.nown*bs, len(f.owned), len(x.owned))
	}
	fB := make([]float64, nb*bs)
	for p, lb := range m.bloc {
		copy(fB[p*bs:(p+1)*bs], f.owned[lb*bs:(lb+1)*bs])
	}
	g := make([]float64, m.solver.N())
	for p, lb := range m.cloc {
		if lb < m.nown {
			for r := 0; r < bs; r++ {
				g[m.gIfc[p]*bs+r] = f.owned[lb*bs+r]
			}
		}
	}
	t := append([]float64(nil), fB...)
	if err := m.Bf.ApplyFactor(t); err != nil {
		return err
	}
	gF := make([]float64, nc*bs)
	if err := m.F.Mult(t, gF); err != nil {
		return err
	}
	for p := 0; p < nc; p++ {
		for r := 0; r < bs; r++ {
			g[m.gIfc[p]*bs+r] -= gF[p*bs+r]
		}
	}
	y, err := m.solver.SolveAdd(g)
	if err != nil {
		return err
	}
	yloc := make([]float64, nc*bs)
	for p := 0; p < nc; p++ {
		copy(yloc[p*bs:(p+1)*bs], y[m.gIfc[p]*bs:(m.gIfc[p]+1)*bs])
	}
	r := append([]float64(nil), fB...)
	if err := m.E.MultSub(yloc, r); err != nil {
		return err
	}
	if err := m.Bf.ApplyFactor(r); err != nil {
		return err
	}
	for p, lb := range m.bloc {
		copy(x.owned[lb*bs:(lb+1)*bs], r[p*bs:(p+1)*bs])
	}
	for p, lb := range m.cloc {
		if lb < m.nown {
			copy(x.owned[lb*bs:(lb+1)*bs], y[m.gIfc[p]*bs:(m.gIfc[p]+1)*bs])
		}
	}
	return nil
}

// ApplyFactor computes y = A^-1 x from the factored pipeline. With the
// complete interior fill used here this is a direct solve, usable as an
// exact preconditioner. Requires Ready; collective.
func (m *ScMat) ApplyFactor(x, y *Vec) error { return m.Solve(x, y) }

// Mult computes y = A*x through the quadrants, for residual checks. The
// ghost replicas of x are read as stored: refresh them with
// ScatterGhosts after the owned values change. Collective: replica
// interface rows accumulate back to their owners, so y must carry this
// matrix's distribution.
func (m *ScMat) Mult(x, y *Vec) error {
	var (
		bs = m.bs
		nb = len(m.bloc)
		nc = len(m.cloc)
	)
	if len(x.owned) != m.nown*bs || len(x.ghosts) != (m.nloc-m.nown)*bs ||
		len(y.owned) != m.nown*bs || len(y.ghosts) != (m.nloc-m.nown)*bs {
		return fmt.Errorf("%w: multiply over %d+%d local values against x[%d+%d], y[%d+%d]",
			ErrDimensionMismatch, m.nown*bs, (m.nloc-m.nown)*bs,
			len(x.owned), len(x.ghosts), len(y.owned), len(y.ghosts))
	}
	local := func(v *Vec, lb int) []float64 {
		if lb < m.nown {
			return v.owned[lb*bs : (lb+1)*bs]
		}
		return v.ghosts[(lb-m.nown)*bs : (lb-m.nown+1)*bs]
	}
	var (
		xB = make([]float64, nb*bs)
		xC = make([]float64, nc*bs)
		yB = make([]float64, nb*bs)
		yC = make([]float64, nc*bs)
	)
	for p, lb := range m.bloc {
		copy(xB[p*bs:(p+1)*bs], local(x, lb))
	}
	for p, lb := range m.cloc {
		copy(xC[p*bs:(p+1)*bs], local(x, lb))
	}
	if err := m.B.Mult(xB, yB); err != nil {
		return err
	}
	if err := m.E.MultAdd(xC, yB); err != nil {
		return err
	}
	if err := m.F.Mult(xB, yC); err != nil {
		return err
	}
	if err := m.C.MultAdd(xC, yC); err != nil {
		return err
	}
	y.Zero()
	for p, lb := range m.bloc {
		copy(local(y, lb), yB[p*bs:(p+1)*bs])
	}
	for p, lb := range m.cloc {
		copy(local(y, lb), yC[p*bs:(p+1)*bs])
	}
	return y.ReduceGhosts()
}
