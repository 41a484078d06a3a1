package bpmat

import (
	"fmt"

	"github.com/eirikurj/tacs/comm"
)

// NewFEMat builds a Schur-complement matrix with the interface chosen by
// the finite-element partition policy: every ghost block, every owned
// block replicated on another rank, and every owned block adjacent to a
// ghost in either direction of the local connectivity rowp/cols. Blocks
// the policy leaves interior then couple only on-rank DOFs and appear
// on no other rank, so the partition invariant and the cross-rank
// consistency of the interface set hold by construction, and elements
// assigned to one rank assemble without off-rank flushes.
//
// order, when not nil, reorders the interior subgraph for fill
// reduction: it receives the subgraph in compressed sparse row form and
// returns a permutation, position to subgraph index. Collective.
func NewFEMat(c *comm.Comm, vm *VarMap, bs int, ghosts []int, rowp, cols []int,
	order func(n int, rowp, cols []int) ([]int, error), mode SchurMode) (*ScMat, error) {
	dist, err := NewDistribute(c, vm, bs, ghosts)
	if err != nil {
		return nil, err
	}
	var (
		nown = vm.NumOwned(c.Rank())
		nloc = nown + len(ghosts)
	)
	if len(rowp) != nloc+1 {
		return nil, fmt.Errorf("%w: %d local blocks, rowp length %d", ErrDimensionMismatch, nloc, len(rowp))
	}
	isIfc := make([]bool, nloc)
	for lb := nown; lb < nloc; lb++ {
		isIfc[lb] = true
	}
	for _, off := range dist.Ghosted() {
		isIfc[off] = true
	}
	for i := 0; i < nloc; i++ {
		for p := rowp[i]; p < rowp[i+1]; p++ {
			j := cols[p]
			if j < 0 || j >= nloc {
				return nil, fmt.Errorf("%w: connectivity column %d of %d local blocks",
					ErrDimensionMismatch, j, nloc)
			}
			if i < nown && j >= nown {
				isIfc[i] = true
			}
			if i >= nown && j < nown {
				isIfc[j] = true
			}
		}
	}

	var interiorOrder []int
	if order != nil {
		var (
			sub []int
			inv = make(map[int]int)
		)
		for lb := 0; lb < nown; lb++ {
			if !isIfc[lb] {
				inv[lb] = len(sub)
				sub = append(sub, lb)
			}
		}
		var (
			subRowp = make([]int, 1, len(sub)+1)
			subCols []int
		)
		for _, lb := range sub {
			for p := rowp[lb]; p < rowp[lb+1]; p++ {
				if si, ok := inv[cols[p]]; ok {
					subCols = append(subCols, si)
				}
			}
			subRowp = append(subRowp, len(subCols))
		}
		perm, err := order(len(sub), subRowp, subCols)
		if err != nil {
			return nil, fmt.Errorf("bpmat: interior ordering: %w", err)
		}
		if len(perm) != len(sub) {
			return nil, fmt.Errorf("%w: interior ordering covers %d of %d blocks",
				ErrDimensionMismatch, len(perm), len(sub))
		}
		interiorOrder = make([]int, len(sub))
		for p, si := range perm {
			if si < 0 || si >= len(sub) {
				return nil, fmt.Errorf("%w: interior ordering names index %d of %d",
					ErrDimensionMismatch, si, len(sub))
			}
			interiorOrder[p] = sub[si]
		}
	}
	return NewScMat(c, vm, bs, dist, isIfc, rowp, cols, interiorOrder, mode)
}
