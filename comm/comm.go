// Package comm provides the process model for the distributed linear
// algebra: a World of ranks connected by point-to-point message channels,
// plus the collective operations the solver phases are built from.
//
// Ranks are goroutines inside one OS process. Every exchange phase is
// bulk-synchronous: each rank reaches the same sends, receives and
// collectives in the same order, over a topology fixed at setup time.
package comm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrSize    = errors.New("comm: world size must be at least 1")
	ErrRank    = errors.New("comm: rank out of range")
	ErrTag     = errors.New("comm: message tag mismatch")
	ErrShape   = errors.New("comm: payload length mismatch in collective")
	ErrTimeout = errors.New("comm: receive timed out")
)

// DefaultTimeout bounds every Recv. A blocked receive almost always means
// a rank died or a phase got out of order, so fail loudly instead of
// hanging the whole world.
const DefaultTimeout = 30 * time.Second

// chanDepth is the per-pair channel buffer. One message per pair per
// phase is the protocol norm; the slack lets all ranks post their sends
// for a phase before any receive runs.
const chanDepth = 64

// message is the unit moved between ranks. Either payload may be nil.
type message struct {
	tag    int
	ints   []int
	floats []float64
}

// World owns the channel fabric for a fixed number of ranks.
type World struct {
	size    int
	chans   [][]chan message // chans[src][dst]
	timeout time.Duration
}

func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrSize, size)
	}
	w := &World{
		size:    size,
		chans:   make([][]chan message, size),
		timeout: DefaultTimeout,
	}
	for src := 0; src < size; src++ {
		w.chans[src] = make([]chan message, size)
		for dst := 0; dst < size; dst++ {
			w.chans[src][dst] = make(chan message, chanDepth)
		}
	}
	return w, nil
}

func (w *World) Size() int { return w.size }

// SetTimeout overrides the receive timeout for all ranks. Call before
// Run; the fabric does not lock this field.
func (w *World) SetTimeout(d time.Duration) { w.timeout = d }

// Rank returns the communicator endpoint for one rank.
func (w *World) Rank(rank int) (*Comm, error) {
	if rank < 0 || rank >= w.size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrRank, rank, w.size)
	}
	return &Comm{w: w, rank: rank}, nil
}

// Run executes fn once per rank, each on its own goroutine, and returns
// the per-rank failures joined, each prefixed with its rank.
func (w *World) Run(fn func(c *Comm) error) error {
	var (
		wg   sync.WaitGroup
		errs = make([]error, w.size)
	)
	for rank := 0; rank < w.size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c, err := w.Rank(rank)
			if err != nil {
				errs[rank] = err
				return
			}
			if err = fn(c); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
			}
		}(rank)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run builds a World of nprocs ranks and executes fn on each.
func Run(nprocs int, fn func(c *Comm) error) error {
	w, err := NewWorld(nprocs)
	if err != nil {
		return err
	}
	return w.Run(fn)
}

// Comm is one rank's endpoint into the World.
type Comm struct {
	w    *World
	rank int
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.w.size }

// Send posts a tagged message to dst. Payload slices are copied, so the
// caller may reuse its buffers immediately.
func (c *Comm) Send(dst, tag int, ints []int, floats []float64) error {
	if dst < 0 || dst >= c.w.size {
		return fmt.Errorf("%w: send from %d to %d", ErrRank, c.rank, dst)
	}
	m := message{tag: tag}
	if len(ints) > 0 {
		m.ints = append([]int(nil), ints...)
	}
	if len(floats) > 0 {
		m.floats = append([]float64(nil), floats...)
	}
	c.w.chans[c.rank][dst] <- m
	return nil
}

// Recv waits for the next message from src and checks its tag. Channels
// are FIFO per (src,dst) pair, so under the bulk-synchronous protocol a
// tag mismatch means the two ranks are in different phases.
func (c *Comm) Recv(src, tag int) (ints []int, floats []float64, err error) {
	if src < 0 || src >= c.w.size {
		return nil, nil, fmt.Errorf("%w: recv at %d from %d", ErrRank, c.rank, src)
	}
	select {
	case m := <-c.w.chans[src][c.rank]:
		if m.tag != tag {
			return nil, nil, fmt.Errorf("%w: rank %d expected tag %d from %d, got %d",
				ErrTag, c.rank, tag, src, m.tag)
		}
		return m.ints, m.floats, nil
	case <-time.After(c.w.timeout):
		return nil, nil, fmt.Errorf("%w: rank %d waiting on rank %d tag %d",
			ErrTimeout, c.rank, src, tag)
	}
}

func (c *Comm) SendInts(dst, tag int, v []int) error {
	return c.Send(dst, tag, v, nil)
}

func (c *Comm) RecvInts(src, tag int) ([]int, error) {
	ints, _, err := c.Recv(src, tag)
	return ints, err
}

func (c *Comm) SendFloats(dst, tag int, v []float64) error {
	return c.Send(dst, tag, nil, v)
}

func (c *Comm) RecvFloats(src, tag int) ([]float64, error) {
	_, floats, err := c.Recv(src, tag)
	return floats, err
}
