package bpmat

import (
	"fmt"
	"sort"

	"github.com/eirikurj/tacs/comm"
)

// Message tags for the vector exchange phases.
const (
	tagDistForward = 101
	tagDistReverse = 102
	tagMatFlush    = 103
)

// neighbor is one side of a fixed pairwise exchange. For sends idx holds
// local owned block offsets to pack; for receives it holds ghost
// positions to fill. Both sides order idx identically, so no index data
// moves at exchange time.
type neighbor struct {
	rank int
	idx  []int
}

// Distribute is the frozen communication topology for one ghost pattern:
// which owned blocks each neighbor replicates, and where each ghost
// value lands. Built once with a collective; Forward and Reverse then
// move only float payloads.
type Distribute struct {
	c        *comm.Comm
	vm       *VarMap
	bs       int
	ghosts   []int
	ghostPos map[int]int
	sendTo   []neighbor // ranks replicating blocks this rank owns
	recvFrom []neighbor // owners of this rank's ghosts
}

// NewDistribute freezes the exchange topology for the given ghost list
// (global block indices referenced locally but owned elsewhere). The
// ghost order given here fixes the ghost segment layout of every vector
// created from this Distribute. Collective: every rank must call it with
// its own list.
func NewDistribute(c *comm.Comm, vm *VarMap, bs int, ghosts []int) (*Distribute, error) {
	if bs < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, bs)
	}
	var (
		rank = c.Rank()
		d    = &Distribute{
			c:        c,
			vm:       vm,
			bs:       bs,
			ghosts:   append([]int(nil), ghosts...),
			ghostPos: make(map[int]int, len(ghosts)),
		}
	)
	for pos, g := range d.ghosts {
		if vm.Owner(g) < 0 {
			return nil, fmt.Errorf("%w: ghost block %d outside global range %d",
				ErrDimensionMismatch, g, vm.GlobalSize())
		}
		if vm.Owns(rank, g) {
			return nil, fmt.Errorf("%w: block %d is owned locally, not a ghost",
				ErrStructuralMismatch, g)
		}
		if _, dup := d.ghostPos[g]; dup {
			return nil, fmt.Errorf("%w: duplicate ghost block %d", ErrStructuralMismatch, g)
		}
		d.ghostPos[g] = pos
	}

	// One collective exposes every rank's ghost list; both directions of
	// the topology fall out locally and identically ordered on each side
	// (the requester's list order, restricted to one owner).
	all, err := c.AllGatherInts(d.ghosts)
	if err != nil {
		return nil, err
	}
	lo, _ := vm.OwnedRange(rank)
	for r := 0; r < c.Size(); r++ {
		if r == rank {
			continue
		}
		var pack []int
		for _, g := range all[r] {
			if vm.Owns(rank, g) {
				pack = append(pack, g-lo)
			}
		}
		if len(pack) > 0 {
			d.sendTo = append(d.sendTo, neighbor{rank: r, idx: pack})
		}
	}
	byOwner := make(map[int][]int)
	for pos, g := range d.ghosts {
		owner := vm.Owner(g)
		byOwner[owner] = append(byOwner[owner], pos)
	}
	owners := make([]int, 0, len(byOwner))
	for r := range byOwner {
		owners = append(owners, r)
	}
	sort.Ints(owners)
	for _, r := range owners {
		d.recvFrom = append(d.recvFrom, neighbor{rank: r, idx: byOwner[r]})
	}
	return d, nil
}

// BlockSize returns the scalar components per block.
func (d *Distribute) BlockSize() int { return d.bs }

// NumGhosts returns the number of replicated blocks.
func (d *Distribute) NumGhosts() int { return len(d.ghosts) }

// Ghosts returns the ghost list in segment order.
func (d *Distribute) Ghosts() []int { return d.ghosts }

// Ghosted returns the local offsets of owned blocks that at least one
// other rank replicates, ascending.
func (d *Distribute) Ghosted() []int {
	seen := make(map[int]bool)
	for _, nb := range d.sendTo {
		for _, off := range nb.idx {
			seen[off] = true
		}
	}
	out := make([]int, 0, len(seen))
	for off := range seen {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}

// LocalIndex maps a global block to this rank's local numbering: owned
// blocks first, then ghosts in segment order. The second result is false
// when the block is neither owned nor replicated here.
func (d *Distribute) LocalIndex(g int) (int, bool) {
	rank := d.c.Rank()
	if d.vm.Owns(rank, g) {
		lo, _ := d.vm.OwnedRange(rank)
		return g - lo, true
	}
	if pos, ok := d.ghostPos[g]; ok {
		return d.vm.NumOwned(rank) + pos, true
	}
	return 0, false
}

// CreateVec returns a zeroed vector with this distribution's ghost
// segment attached.
func (d *Distribute) CreateVec() *Vec {
	return NewVec(d.c, d.vm, d.bs, d)
}

// Forward scatters owner values into the ghost segments of v on every
// rank. Collective.
func (d *Distribute) Forward(v *Vec) error {
	if err := d.check(v); err != nil {
		return err
	}
	bs := d.bs
	for _, nb := range d.sendTo {
		buf := make([]float64, len(nb.idx)*bs)
		for k, off := range nb.idx {
			copy(buf[k*bs:(k+1)*bs], v.owned[off*bs:(off+1)*bs])
		}
		if err := d.c.SendFloats(nb.rank, tagDistForward, buf); err != nil {
			return err
		}
	}
	for _, nb := range d.recvFrom {
		buf, err := d.c.RecvFloats(nb.rank, tagDistForward)
		if err != nil {
			return err
		}
		if len(buf) != len(nb.idx)*bs {
			return fmt.Errorf("%w: forward exchange from rank %d carried %d values, want %d",
				ErrDimensionMismatch, nb.rank, len(buf), len(nb.idx)*bs)
		}
		for k, pos := range nb.idx {
			copy(v.ghosts[pos*bs:(pos+1)*bs], buf[k*bs:(k+1)*bs])
		}
	}
	return nil
}

// Reverse accumulates ghost segments back into their owners (owner value
// += each replica's value) and zeroes the ghost segments. Collective.
func (d *Distribute) Reverse(v *Vec) error {
	if err := d.check(v); err != nil {
		return err
	}
	bs := d.bs
	for _, nb := range d.recvFrom {
		buf := make([]float64, len(nb.idx)*bs)
		for k, pos := range nb.idx {
			copy(buf[k*bs:(k+1)*bs], v.ghosts[pos*bs:(pos+1)*bs])
		}
		if err := d.c.SendFloats(nb.rank, tagDistReverse, buf); err != nil {
			return err
		}
	}
	for _, nb := range d.sendTo {
		buf, err := d.c.RecvFloats(nb.rank, tagDistReverse)
		if err != nil {
			return err
		}
		if len(buf) != len(nb.idx)*bs {
			return fmt.Errorf("%w: reverse exchange from rank %d carried %d values, want %d",
				ErrDimensionMismatch, nb.rank, len(buf), len(nb.idx)*bs)
		}
		for k, off := range nb.idx {
			for i := 0; i < bs; i++ {
				v.owned[off*bs+i] += buf[k*bs+i]
			}
		}
	}
	for i := range v.ghosts {
		v.ghosts[i] = 0
	}
	return nil
}

func (d *Distribute) check(v *Vec) error {
	if v.bs != d.bs || len(v.ghosts) != len(d.ghosts)*d.bs {
		return fmt.Errorf("%w: vector does not match distribution (bs %d vs %d, ghosts %d vs %d)",
			ErrDimensionMismatch, v.bs, d.bs, len(v.ghosts)/max(v.bs, 1), len(d.ghosts))
	}
	return nil
}
