package bpmat

import "fmt"

// BC constrains one scalar DOF (block, component) to Value. Weight is
// the entry written on the matrix diagonal in place of the eliminated
// row; the matching right-hand-side entry becomes Weight*Value so the
// solve reproduces Value. A Weight of zero is legal and yields a
// singular matrix, reported at factor time with the offending row.
type BC struct {
	Block  int
	Comp   int
	Value  float64
	Weight float64
}

// BCMap registers boundary conditions against global DOF indices. The
// same registry is applied on every rank; each distributed matrix or
// vector takes the entries that touch its local structure.
type BCMap struct {
	bcs []BC
}

func NewBCMap() *BCMap { return &BCMap{} }

// Add registers one constrained DOF. Registering a DOF again replaces
// its earlier entry.
func (b *BCMap) Add(block, comp int, value, weight float64) {
	bc := BC{Block: block, Comp: comp, Value: value, Weight: weight}
	for i := range b.bcs {
		if b.bcs[i].Block == block && b.bcs[i].Comp == comp {
			b.bcs[i] = bc
			return
		}
	}
	b.bcs = append(b.bcs, bc)
}

// AddDirichlet registers a unit-weight constraint.
func (b *BCMap) AddDirichlet(block, comp int, value float64) {
	b.Add(block, comp, value, 1)
}

// Len returns the number of registered constraints.
func (b *BCMap) Len() int { return len(b.bcs) }

// All returns the registered constraints.
func (b *BCMap) All() []BC { return b.bcs }

// bcRef is one constraint translated to a local block index. diag marks
// the single rank and quadrant that writes the weight; replicas zero
// their rows and columns only.
type bcRef struct {
	comp   int
	weight float64
	diag   bool
}

// applyLocalBCs enforces constraints on the stored blocks in one pass:
// scalar rows in rowBCs are zeroed, scalar columns in colBCs are zeroed,
// and diagonal-flagged row constraints write their weight at (comp,comp)
// of the diagonal block. Keys are this matrix's block indices.
func (m *Mat) applyLocalBCs(rowBCs, colBCs map[int][]bcRef) {
	if len(rowBCs) == 0 && len(colBCs) == 0 {
		return
	}
	var (
		bs = m.bs
		bb = bs * bs
	)
	for i := 0; i < m.nbrows; i++ {
		rb := rowBCs[i]
		for p := m.rowp[i]; p < m.rowp[i+1]; p++ {
			var (
				j   = m.cols[p]
				blk = m.vals[p*bb : (p+1)*bb]
			)
			for _, r := range rb {
				for c := 0; c < bs; c++ {
					blk[r.comp*bs+c] = 0
				}
			}
			for _, r := range colBCs[j] {
				for c := 0; c < bs; c++ {
					blk[c*bs+r.comp] = 0
				}
			}
			if i == j {
				for _, r := range rb {
					if r.diag {
						blk[r.comp*bs+r.comp] = r.weight
					}
				}
			}
		}
	}
	m.factored = false
}

// ApplyToMat enforces the registry on a serial matrix whose block rows
// and columns are global indices.
func (b *BCMap) ApplyToMat(m *Mat) error {
	var (
		rowBCs = make(map[int][]bcRef, len(b.bcs))
		colBCs = make(map[int][]bcRef, len(b.bcs))
	)
	for _, bc := range b.bcs {
		if bc.Block < 0 || bc.Block >= m.nbrows || bc.Comp < 0 || bc.Comp >= m.bs {
			return fmt.Errorf("%w: constraint on block %d component %d of %d-by-%d bs=%d",
				ErrDimensionMismatch, bc.Block, bc.Comp, m.nbrows, m.nbcols, m.bs)
		}
		ref := bcRef{comp: bc.Comp, weight: bc.Weight, diag: true}
		rowBCs[bc.Block] = append(rowBCs[bc.Block], ref)
		colBCs[bc.Block] = append(colBCs[bc.Block], ref)
	}
	m.applyLocalBCs(rowBCs, colBCs)
	return nil
}

// ApplyToRHS writes weight*value into each constrained owned entry of a
// right-hand-side vector.
func (b *BCMap) ApplyToRHS(v *Vec) {
	for _, bc := range b.bcs {
		v.SetOwned(bc.Block, bc.Comp, bc.Weight*bc.Value)
	}
}

// ApplyToSolution overwrites each constrained owned entry with its
// prescribed value.
func (b *BCMap) ApplyToSolution(v *Vec) {
	for _, bc := range b.bcs {
		v.SetOwned(bc.Block, bc.Comp, bc.Value)
	}
}
