package bpmat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/eirikurj/tacs/comm"
)

// Vec is a distributed block vector: a contiguous owned segment per rank
// plus an optional ghost segment laid out by a Distribute. Arithmetic
// acts on the owned segment; ghost values are refreshed or drained only
// through the explicit ScatterGhosts and ReduceGhosts phases.
type Vec struct {
	c      *comm.Comm
	vm     *VarMap
	bs     int
	owned  []float64
	ghosts []float64
	dist   *Distribute
}

// NewVec returns a zeroed vector over the rank's owned range. dist may
// be nil for vectors that never exchange ghost data.
func NewVec(c *comm.Comm, vm *VarMap, bs int, dist *Distribute) *Vec {
	v := &Vec{
		c:     c,
		vm:    vm,
		bs:    bs,
		owned: make([]float64, vm.NumOwned(c.Rank())*bs),
		dist:  dist,
	}
	if dist != nil {
		v.ghosts = make([]float64, dist.NumGhosts()*bs)
	}
	return v
}

// BlockSize returns the scalar components per block.
func (v *Vec) BlockSize() int { return v.bs }

// NumOwned returns the number of owned blocks on this rank.
func (v *Vec) NumOwned() int { return len(v.owned) / v.bs }

// Owned exposes the owned scalar values. The slice aliases the vector's
// storage.
func (v *Vec) Owned() []float64 { return v.owned }

// Ghosts exposes the ghost scalar values in distribution segment order.
func (v *Vec) Ghosts() []float64 { return v.ghosts }

// Map returns the ownership map the vector is laid out over.
func (v *Vec) Map() *VarMap { return v.vm }

// Zero clears owned and ghost values.
func (v *Vec) Zero() {
	for i := range v.owned {
		v.owned[i] = 0
	}
	for i := range v.ghosts {
		v.ghosts[i] = 0
	}
}

// Copy returns a new vector with the same layout and copied values.
func (v *Vec) Copy() *Vec {
	w := NewVec(v.c, v.vm, v.bs, v.dist)
	copy(w.owned, v.owned)
	copy(w.ghosts, v.ghosts)
	return w
}

// CopyFrom overwrites this vector's values with x's.
func (v *Vec) CopyFrom(x *Vec) error {
	if len(x.owned) != len(v.owned) || len(x.ghosts) != len(v.ghosts) {
		return fmt.Errorf("%w: copy from %d+%d values into %d+%d",
			ErrDimensionMismatch, len(x.owned), len(x.ghosts), len(v.owned), len(v.ghosts))
	}
	copy(v.owned, x.owned)
	copy(v.ghosts, x.ghosts)
	return nil
}

// SetOwned writes one scalar DOF if this rank owns its block; other
// ranks' calls are no-ops so SPMD drivers can set global data uniformly.
func (v *Vec) SetOwned(gblock, comp int, val float64) {
	if !v.vm.Owns(v.c.Rank(), gblock) {
		return
	}
	lo, _ := v.vm.OwnedRange(v.c.Rank())
	v.owned[(gblock-lo)*v.bs+comp] = val
}

// AddOwned accumulates into one scalar DOF if this rank owns its block.
func (v *Vec) AddOwned(gblock, comp int, val float64) {
	if !v.vm.Owns(v.c.Rank(), gblock) {
		return
	}
	lo, _ := v.vm.OwnedRange(v.c.Rank())
	v.owned[(gblock-lo)*v.bs+comp] += val
}

// AtOwned reads one scalar DOF; ok is false when the block lives on
// another rank.
func (v *Vec) AtOwned(gblock, comp int) (val float64, ok bool) {
	if !v.vm.Owns(v.c.Rank(), gblock) {
		return 0, false
	}
	lo, _ := v.vm.OwnedRange(v.c.Rank())
	return v.owned[(gblock-lo)*v.bs+comp], true
}

// Dot returns the global inner product. Collective; ghosts never
// contribute, so replicated blocks are not double-counted.
func (v *Vec) Dot(x *Vec) (float64, error) {
	if len(x.owned) != len(v.owned) {
		return 0, fmt.Errorf("%w: dot of %d against %d owned values",
			ErrDimensionMismatch, len(v.owned), len(x.owned))
	}
	sum := []float64{floats.Dot(v.owned, x.owned)}
	if err := v.c.AllReduceSum(sum); err != nil {
		return 0, err
	}
	return sum[0], nil
}

// Norm returns the global 2-norm. Collective.
func (v *Vec) Norm() (float64, error) {
	sum := []float64{floats.Dot(v.owned, v.owned)}
	if err := v.c.AllReduceSum(sum); err != nil {
		return 0, err
	}
	return math.Sqrt(sum[0]), nil
}

// Axpy adds alpha*x into the owned segment.
func (v *Vec) Axpy(alpha float64, x *Vec) error {
	if len(x.owned) != len(v.owned) {
		return fmt.Errorf("%w: axpy of %d into %d owned values",
			ErrDimensionMismatch, len(x.owned), len(v.owned))
	}
	floats.AddScaled(v.owned, alpha, x.owned)
	return nil
}

// Scale multiplies the owned segment by alpha.
func (v *Vec) Scale(alpha float64) {
	floats.Scale(alpha, v.owned)
}

// ScatterGhosts refreshes the ghost segment from the owners. Collective.
func (v *Vec) ScatterGhosts() error {
	if v.dist == nil {
		return nil
	}
	return v.dist.Forward(v)
}

// ReduceGhosts accumulates ghost contributions back to their owners and
// zeroes the ghost segment. Collective.
func (v *Vec) ReduceGhosts() error {
	if v.dist == nil {
		return nil
	}
	return v.dist.Reverse(v)
}

// Gather returns the full global owned vector, identical on every rank.
// Collective; intended for small systems, reporting and tests.
func (v *Vec) Gather() ([]float64, error) {
	parts, err := v.c.AllGatherFloats(v.owned)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, v.vm.GlobalSize()*v.bs)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
