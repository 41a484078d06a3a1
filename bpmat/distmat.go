package bpmat

import (
	"fmt"
	"sort"

	"github.com/eirikurj/tacs/comm"
)

// DistMat is the row-distributed block matrix: each rank stores the
// block rows it owns over the column space of owned plus ghost blocks,
// laid out by a Distribute. Contributions to rows owned elsewhere are
// staged locally and exchanged in FinishAssembly over the fixed
// neighbor topology, accumulating on receipt so exactly-once element
// assembly sums coincident values.
type DistMat struct {
	c    *comm.Comm
	vm   *VarMap
	bs   int
	dist *Distribute
	loc  *Mat

	staged map[[2]int][]float64

	// Additive-Schwarz factorization of the owned diagonal sub-pattern:
	// diagLoc mirrors the owned columns of loc (subSrc maps its entries
	// back), sub carries the fill pattern and the factorization.
	diagLoc *Mat
	sub     *Mat
	subSrc  []int
	xbuf    []float64
}

// NewDistMat builds the local block rows from a pattern over local
// column indices: owned columns first ([0, numOwned)), then ghosts in
// the distribution's segment order.
func NewDistMat(c *comm.Comm, vm *VarMap, dist *Distribute, bs int, rowp, cols []int) (*DistMat, error) {
	if bs != dist.BlockSize() {
		return nil, fmt.Errorf("%w: matrix bs %d over distribution bs %d", ErrBlockSize, bs, dist.BlockSize())
	}
	var (
		nown = vm.NumOwned(c.Rank())
		ncol = nown + dist.NumGhosts()
	)
	loc, err := NewMat(bs, nown, ncol, rowp, cols)
	if err != nil {
		return nil, err
	}
	return &DistMat{
		c:      c,
		vm:     vm,
		bs:     bs,
		dist:   dist,
		loc:    loc,
		staged: make(map[[2]int][]float64),
		xbuf:   make([]float64, ncol*bs),
	}, nil
}

// BlockSize returns the scalar components per block.
func (m *DistMat) BlockSize() int { return m.bs }

// Map returns the row ownership map.
func (m *DistMat) Map() *VarMap { return m.vm }

// Local returns the local block rows (owned rows over owned+ghost
// columns).
func (m *DistMat) Local() *Mat { return m.loc }

// CreateVec returns a zeroed vector over the matrix column space, ghost
// segment included.
func (m *DistMat) CreateVec() *Vec { return m.dist.CreateVec() }

// Zero clears local values, staged contributions and any local
// factorization.
func (m *DistMat) Zero() {
	m.loc.Zero()
	for k := range m.staged {
		delete(m.staged, k)
	}
	if m.sub != nil {
		m.sub.Zero()
	}
}

// AddValues scatters a dense element matrix by global block indices.
// Rows owned here land in the local pattern immediately; rows owned
// elsewhere are staged until FinishAssembly. Columns must be owned or
// ghost blocks of this rank. Negative indices skip a block row or
// column.
func (m *DistMat) AddValues(rows, cols []int, values []float64) error {
	var (
		bs   = m.bs
		rank = m.c.Rank()
		ncv  = len(cols) * bs
	)
	if len(values) != len(rows)*bs*ncv {
		return fmt.Errorf("%w: element matrix carries %d values, want %d*%d",
			ErrDimensionMismatch, len(values), len(rows)*bs, ncv)
	}
	block := make([]float64, bs*bs)
	for a, gi := range rows {
		if gi < 0 {
			continue
		}
		owned := m.vm.Owns(rank, gi)
		for b, gj := range cols {
			if gj < 0 {
				continue
			}
			for r := 0; r < bs; r++ {
				copy(block[r*bs:(r+1)*bs], values[(a*bs+r)*ncv+b*bs:(a*bs+r)*ncv+b*bs+bs])
			}
			if owned {
				li, lj, err := m.localEntry(gi, gj)
				if err != nil {
					return err
				}
				if err := m.loc.AddBlock(li, lj, block); err != nil {
					return fmt.Errorf("%w: global block (%d,%d)", ErrStructuralMismatch, gi, gj)
				}
				continue
			}
			m.stage(gi, gj, block)
		}
	}
	return nil
}

func (m *DistMat) localEntry(gi, gj int) (li, lj int, err error) {
	lo, _ := m.vm.OwnedRange(m.c.Rank())
	lj, ok := m.dist.LocalIndex(gj)
	if !ok {
		return 0, 0, fmt.Errorf("%w: column block %d is neither owned nor a ghost here",
			ErrStructuralMismatch, gj)
	}
	return gi - lo, lj, nil
}

func (m *DistMat) stage(gi, gj int, block []float64) {
	key := [2]int{gi, gj}
	dst, ok := m.staged[key]
	if !ok {
		dst = make([]float64, m.bs*m.bs)
		m.staged[key] = dst
	}
	for p, v := range block {
		dst[p] += v
	}
}

// FinishAssembly flushes staged off-process contributions to their
// owning ranks and accumulates the ones arriving here. Collective: every
// rank exchanges with its fixed neighbors even when it staged nothing.
func (m *DistMat) FinishAssembly() error {
	var (
		bs = m.bs
		bb = bs * bs
	)
	// Staged rows can only belong to ghost blocks, so the owners of this
	// rank's ghosts are the complete destination set.
	byOwner := make(map[int][][2]int)
	for key := range m.staged {
		if _, ok := m.dist.ghostPos[key[0]]; !ok {
			return fmt.Errorf("%w: staged row %d is not a ghost block here",
				ErrStructuralMismatch, key[0])
		}
		owner := m.vm.Owner(key[0])
		byOwner[owner] = append(byOwner[owner], key)
	}
	for _, nb := range m.dist.recvFrom {
		keys := byOwner[nb.rank]
		// Deterministic payload order regardless of map iteration.
		sort.Slice(keys, func(a, b int) bool {
			if keys[a][0] != keys[b][0] {
				return keys[a][0] < keys[b][0]
			}
			return keys[a][1] < keys[b][1]
		})
		var (
			idx  = make([]int, 0, 2*len(keys))
			vals = make([]float64, 0, bb*len(keys))
		)
		for _, key := range keys {
			idx = append(idx, key[0], key[1])
			vals = append(vals, m.staged[key]...)
		}
		if err := m.c.Send(nb.rank, tagMatFlush, idx, vals); err != nil {
			return err
		}
	}
	for _, nb := range m.dist.sendTo {
		idx, vals, err := m.c.Recv(nb.rank, tagMatFlush)
		if err != nil {
			return err
		}
		if len(vals) != (len(idx)/2)*bb || len(idx)%2 != 0 {
			return fmt.Errorf("%w: assembly flush from rank %d carried %d indices, %d values",
				ErrDimensionMismatch, nb.rank, len(idx), len(vals))
		}
		for k := 0; k < len(idx); k += 2 {
			li, lj, err := m.localEntry(idx[k], idx[k+1])
			if err != nil {
				return err
			}
			if err := m.loc.AddBlock(li, lj, vals[(k/2)*bb:(k/2+1)*bb]); err != nil {
				return fmt.Errorf("%w: global block (%d,%d) from rank %d",
					ErrStructuralMismatch, idx[k], idx[k+1], nb.rank)
			}
		}
	}
	for k := range m.staged {
		delete(m.staged, k)
	}
	return nil
}

// Mult computes y = A*x over the owned rows. The ghost segment of x is
// read as stored: refresh it with ScatterGhosts once after the owned
// values change, and any number of products reuse it. No communication.
// Staged off-process contributions must be flushed with FinishAssembly
// before the product.
func (m *DistMat) Mult(x, y *Vec) error {
	if len(m.staged) > 0 {
		return fmt.Errorf("%w: %d staged blocks pending FinishAssembly", ErrState, len(m.staged))
	}
	if x.bs != m.bs || y.bs != m.bs || len(y.owned) != m.loc.Rows() ||
		len(x.owned)+len(x.ghosts) != len(m.xbuf) {
		return fmt.Errorf("%w: multiply local %d-by-%d against x[%d+%d], y[%d]",
			ErrDimensionMismatch, m.loc.Rows(), m.loc.Cols(), len(x.owned), len(x.ghosts), len(y.owned))
	}
	n := copy(m.xbuf, x.owned)
	copy(m.xbuf[n:], x.ghosts)
	return m.loc.Mult(m.xbuf, y.owned)
}

// ApplyBCs enforces the registry: owned constrained rows are zeroed with
// the weight on the diagonal, and constrained columns (owned or ghost)
// are zeroed wherever this rank stores them.
func (m *DistMat) ApplyBCs(bcs *BCMap) error {
	var (
		rank   = m.c.Rank()
		lo, _  = m.vm.OwnedRange(rank)
		rowBCs = make(map[int][]bcRef)
		colBCs = make(map[int][]bcRef)
	)
	for _, bc := range bcs.All() {
		if bc.Comp < 0 || bc.Comp >= m.bs {
			return fmt.Errorf("%w: constraint component %d for bs %d", ErrDimensionMismatch, bc.Comp, m.bs)
		}
		ref := bcRef{comp: bc.Comp, weight: bc.Weight, diag: true}
		if m.vm.Owns(rank, bc.Block) {
			rowBCs[bc.Block-lo] = append(rowBCs[bc.Block-lo], ref)
		}
		if lj, ok := m.dist.LocalIndex(bc.Block); ok {
			colBCs[lj] = append(colBCs[lj], ref)
		}
	}
	m.loc.applyLocalBCs(rowBCs, colBCs)
	return nil
}

// FactorLocal factors the owned diagonal sub-matrix with the given fill
// level, building the additive-Schwarz preconditioner. The sub-pattern
// is derived once and refreshed from the current values on every call.
func (m *DistMat) FactorLocal(levFill int) error {
	if len(m.staged) > 0 {
		return fmt.Errorf("%w: %d staged blocks pending FinishAssembly", ErrState, len(m.staged))
	}
	nown := m.loc.nbrows
	if m.sub == nil {
		var (
			rowp = make([]int, 1, nown+1)
			cols []int
			src  []int
		)
		for i := 0; i < nown; i++ {
			for p := m.loc.rowp[i]; p < m.loc.rowp[i+1]; p++ {
				if m.loc.cols[p] < nown {
					cols = append(cols, m.loc.cols[p])
					src = append(src, p)
				}
			}
			rowp = append(rowp, len(cols))
		}
		diagLoc, err := NewMat(m.bs, nown, nown, rowp, cols)
		if err != nil {
			return err
		}
		sub, err := NewFactorMat(diagLoc, levFill)
		if err != nil {
			return err
		}
		m.diagLoc, m.sub, m.subSrc = diagLoc, sub, src
	}
	bb := m.bs * m.bs
	for q, p := range m.subSrc {
		copy(m.diagLoc.vals[q*bb:(q+1)*bb], m.loc.vals[p*bb:(p+1)*bb])
	}
	if err := m.sub.CopyValues(m.diagLoc); err != nil {
		return err
	}
	return m.sub.Factor()
}

// ApplyFactor applies the additive-Schwarz preconditioner: each rank
// solves its owned diagonal factorization independently, y = D^-1 x.
// No communication.
func (m *DistMat) ApplyFactor(x, y *Vec) error {
	if m.sub == nil || !m.sub.Factored() {
		return fmt.Errorf("%w: FactorLocal has not run", ErrNotFactored)
	}
	if len(x.owned) != len(y.owned) || len(x.owned) != m.sub.Rows() {
		return fmt.Errorf("%w: preconditioner over %d values against x[%d], y[%d]",
			ErrDimensionMismatch, m.sub.Rows(), len(x.owned), len(y.owned))
	}
	return m.sub.ApplySolve(x.owned, y.owned)
}
