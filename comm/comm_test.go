package comm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecv(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		switch c.Rank() {
		case 0:
			if err := c.Send(1, 7, []int{3, 1, 4}, []float64{1.5, -2.5}); err != nil {
				return err
			}
		case 1:
			ints, floats, err := c.Recv(0, 7)
			if err != nil {
				return err
			}
			assert.Equal(t, []int{3, 1, 4}, ints)
			assert.Equal(t, []float64{1.5, -2.5}, floats)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestSendCopiesPayload(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		if c.Rank() == 0 {
			buf := []float64{1, 2, 3}
			if err := c.SendFloats(1, 0, buf); err != nil {
				return err
			}
			// Reuse the buffer after the send has been posted.
			buf[0], buf[1], buf[2] = 9, 9, 9
			return nil
		}
		got, err := c.RecvFloats(0, 0)
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{1, 2, 3}, got)
		return nil
	})
	assert.NoError(t, err)
}

func TestAllReduceSum(t *testing.T) {
	for _, size := range []int{1, 2, 4} {
		err := Run(size, func(c *Comm) error {
			x := []float64{float64(c.Rank() + 1), 1}
			if err := c.AllReduceSum(x); err != nil {
				return err
			}
			want := float64(size*(size+1)) / 2
			assert.Equal(t, want, x[0])
			assert.Equal(t, float64(size), x[1])
			return nil
		})
		assert.NoError(t, err)
	}
}

func TestAllGatherInts(t *testing.T) {
	err := Run(3, func(c *Comm) error {
		// Rank r contributes r copies of r, so lengths differ per rank.
		mine := make([]int, c.Rank())
		for i := range mine {
			mine[i] = c.Rank()
		}
		parts, err := c.AllGatherInts(mine)
		if err != nil {
			return err
		}
		require.Len(t, parts, 3)
		assert.Empty(t, parts[0])
		assert.Equal(t, []int{1}, parts[1])
		assert.Equal(t, []int{2, 2}, parts[2])
		return nil
	})
	assert.NoError(t, err)
}

func TestAllGatherFloats(t *testing.T) {
	err := Run(3, func(c *Comm) error {
		mine := []float64{float64(10 * c.Rank())}
		if c.Rank() == 1 {
			mine = nil
		}
		parts, err := c.AllGatherFloats(mine)
		if err != nil {
			return err
		}
		require.Len(t, parts, 3)
		assert.Equal(t, []float64{0}, parts[0])
		assert.Empty(t, parts[1])
		assert.Equal(t, []float64{20}, parts[2])
		return nil
	})
	assert.NoError(t, err)
}

func TestBcastFloats(t *testing.T) {
	err := Run(4, func(c *Comm) error {
		var x []float64
		if c.Rank() == 2 {
			x = []float64{2.5, 5.0}
		}
		got, err := c.BcastFloats(2, x)
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{2.5, 5.0}, got)
		return nil
	})
	assert.NoError(t, err)
}

func TestBarrier(t *testing.T) {
	err := Run(4, func(c *Comm) error {
		for i := 0; i < 3; i++ {
			if err := c.Barrier(); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestTagMismatch(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		if c.Rank() == 0 {
			return c.SendInts(1, 1, []int{1})
		}
		_, err := c.RecvInts(0, 2)
		return err
	})
	assert.True(t, errors.Is(err, ErrTag))
}

func TestRecvTimeout(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	w.SetTimeout(20 * time.Millisecond)
	err = w.Run(func(c *Comm) error {
		if c.Rank() != 0 {
			return nil
		}
		_, err := c.RecvFloats(1, 0)
		return err
	})
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestWorldSize(t *testing.T) {
	_, err := NewWorld(0)
	assert.True(t, errors.Is(err, ErrSize))
}
