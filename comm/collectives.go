package comm

import "fmt"

// Collective phases reserve negative tags so user protocols can use the
// non-negative range freely.
const (
	tagReduceUp   = -1
	tagReduceDown = -2
	tagGatherUp   = -3
	tagGatherDown = -4
	tagBcast      = -5
	tagBarrier    = -6
)

// AllReduceSum replaces x on every rank with the element-wise sum over
// all ranks. Rank 0 accumulates in rank order, so the result is
// bitwise identical everywhere and across runs.
func (c *Comm) AllReduceSum(x []float64) error {
	if c.w.size == 1 {
		return nil
	}
	if c.rank != 0 {
		if err := c.SendFloats(0, tagReduceUp, x); err != nil {
			return err
		}
		sum, err := c.RecvFloats(0, tagReduceDown)
		if err != nil {
			return err
		}
		if len(sum) != len(x) {
			return fmt.Errorf("%w: allreduce got %d values, want %d", ErrShape, len(sum), len(x))
		}
		copy(x, sum)
		return nil
	}
	for src := 1; src < c.w.size; src++ {
		part, err := c.RecvFloats(src, tagReduceUp)
		if err != nil {
			return err
		}
		if len(part) != len(x) {
			return fmt.Errorf("%w: allreduce rank %d sent %d values, want %d",
				ErrShape, src, len(part), len(x))
		}
		for i, v := range part {
			x[i] += v
		}
	}
	for dst := 1; dst < c.w.size; dst++ {
		if err := c.SendFloats(dst, tagReduceDown, x); err != nil {
			return err
		}
	}
	return nil
}

// AllGatherInts collects each rank's slice and returns all of them, in
// rank order, on every rank. Slices may be empty or nil and may differ
// in length.
func (c *Comm) AllGatherInts(x []int) ([][]int, error) {
	size := c.w.size
	if size == 1 {
		return [][]int{append([]int(nil), x...)}, nil
	}
	if c.rank != 0 {
		if err := c.SendInts(0, tagGatherUp, x); err != nil {
			return nil, err
		}
		flat, err := c.RecvInts(0, tagGatherDown)
		if err != nil {
			return nil, err
		}
		return splitIntParts(flat, size)
	}
	parts := make([][]int, size)
	parts[0] = append([]int(nil), x...)
	for src := 1; src < size; src++ {
		v, err := c.RecvInts(src, tagGatherUp)
		if err != nil {
			return nil, err
		}
		parts[src] = v
	}
	flat := joinIntParts(parts)
	for dst := 1; dst < size; dst++ {
		if err := c.SendInts(dst, tagGatherDown, flat); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// AllGatherFloats collects each rank's slice in rank order on every rank.
func (c *Comm) AllGatherFloats(x []float64) ([][]float64, error) {
	size := c.w.size
	if size == 1 {
		return [][]float64{append([]float64(nil), x...)}, nil
	}
	if c.rank != 0 {
		if err := c.SendFloats(0, tagGatherUp, x); err != nil {
			return nil, err
		}
		counts, flat, err := c.Recv(0, tagGatherDown)
		if err != nil {
			return nil, err
		}
		return splitFloatParts(counts, flat, size)
	}
	parts := make([][]float64, size)
	parts[0] = append([]float64(nil), x...)
	for src := 1; src < size; src++ {
		v, err := c.RecvFloats(src, tagGatherUp)
		if err != nil {
			return nil, err
		}
		parts[src] = v
	}
	counts := make([]int, size)
	var total int
	for i, p := range parts {
		counts[i] = len(p)
		total += len(p)
	}
	flat := make([]float64, 0, total)
	for _, p := range parts {
		flat = append(flat, p...)
	}
	for dst := 1; dst < size; dst++ {
		if err := c.Send(dst, tagGatherDown, counts, flat); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// BcastFloats distributes root's slice to every rank and returns it.
func (c *Comm) BcastFloats(root int, x []float64) ([]float64, error) {
	if root < 0 || root >= c.w.size {
		return nil, fmt.Errorf("%w: bcast root %d of %d", ErrRank, root, c.w.size)
	}
	if c.w.size == 1 {
		return x, nil
	}
	if c.rank == root {
		for dst := 0; dst < c.w.size; dst++ {
			if dst == root {
				continue
			}
			if err := c.SendFloats(dst, tagBcast, x); err != nil {
				return nil, err
			}
		}
		return x, nil
	}
	return c.RecvFloats(root, tagBcast)
}

// Barrier blocks until every rank has entered it.
func (c *Comm) Barrier() error {
	if c.w.size == 1 {
		return nil
	}
	if c.rank != 0 {
		if err := c.SendInts(0, tagBarrier, nil); err != nil {
			return err
		}
		_, err := c.RecvInts(0, tagBarrier)
		return err
	}
	for src := 1; src < c.w.size; src++ {
		if _, err := c.RecvInts(src, tagBarrier); err != nil {
			return err
		}
	}
	for dst := 1; dst < c.w.size; dst++ {
		if err := c.SendInts(dst, tagBarrier, nil); err != nil {
			return err
		}
	}
	return nil
}

// joinIntParts flattens parts as [n0, n1, ..., data0, data1, ...].
func joinIntParts(parts [][]int) []int {
	total := len(parts)
	for _, p := range parts {
		total += len(p)
	}
	flat := make([]int, 0, total)
	for _, p := range parts {
		flat = append(flat, len(p))
	}
	for _, p := range parts {
		flat = append(flat, p...)
	}
	return flat
}

func splitIntParts(flat []int, size int) ([][]int, error) {
	if len(flat) < size {
		return nil, fmt.Errorf("%w: gather header truncated", ErrShape)
	}
	parts := make([][]int, size)
	off := size
	for i := 0; i < size; i++ {
		n := flat[i]
		if off+n > len(flat) {
			return nil, fmt.Errorf("%w: gather payload truncated", ErrShape)
		}
		if n > 0 {
			parts[i] = append([]int(nil), flat[off:off+n]...)
		}
		off += n
	}
	return parts, nil
}

func splitFloatParts(counts []int, flat []float64, size int) ([][]float64, error) {
	if len(counts) != size {
		return nil, fmt.Errorf("%w: gather header has %d counts, want %d", ErrShape, len(counts), size)
	}
	parts := make([][]float64, size)
	var off int
	for i := 0; i < size; i++ {
		n := counts[i]
		if off+n > len(flat) {
			return nil, fmt.Errorf("%w: gather payload truncated", ErrShape)
		}
		if n > 0 {
			parts[i] = append([]float64(nil), flat[off:off+n]...)
		}
		off += n
	}
	return parts, nil
}
