package bpmat

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randSlice(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func TestKernelsMatchGeneric(t *testing.T) {
	for _, bs := range []int{1, 2, 3, 4, 5, 6, 8} {
		var (
			rng  = rand.New(rand.NewSource(int64(bs)))
			spec = kernelsFor(bs)
			gen  = genericKernels(bs)
			a    = randSlice(rng, bs*bs)
			b    = randSlice(rng, bs*bs)
			x    = randSlice(rng, bs)
			y0   = randSlice(rng, bs)
			c0   = randSlice(rng, bs*bs)
		)
		require.Equal(t, bs, spec.bs)

		ys, yg := append([]float64(nil), y0...), append([]float64(nil), y0...)
		spec.matVecAdd(a, x, ys)
		gen.matVecAdd(a, x, yg)
		for i := range ys {
			assert.InDelta(t, yg[i], ys[i], 1e-13, "matVecAdd bs=%d i=%d", bs, i)
		}

		ys, yg = append([]float64(nil), y0...), append([]float64(nil), y0...)
		spec.matVecSub(a, x, ys)
		gen.matVecSub(a, x, yg)
		for i := range ys {
			assert.InDelta(t, yg[i], ys[i], 1e-13, "matVecSub bs=%d i=%d", bs, i)
		}

		cs, cg := append([]float64(nil), c0...), append([]float64(nil), c0...)
		spec.gemmSub(a, b, cs)
		gen.gemmSub(a, b, cg)
		for i := range cs {
			assert.InDelta(t, cg[i], cs[i], 1e-13, "gemmSub bs=%d i=%d", bs, i)
		}

		var (
			as, ag = append([]float64(nil), a...), append([]float64(nil), a...)
			ts, tg = make([]float64, bs*bs), make([]float64, bs*bs)
		)
		spec.postMul(as, b, ts)
		gen.postMul(ag, b, tg)
		for i := range as {
			assert.InDelta(t, ag[i], as[i], 1e-13, "postMul bs=%d i=%d", bs, i)
		}
	}
}

func TestInvertBlock(t *testing.T) {
	a := []float64{
		4, 7,
		2, 6,
	}
	inv := make([]float64, 4)
	require.NoError(t, invertBlock(2, a, inv, defaultPivotTol))
	// det = 10, inverse = [0.6 -0.7; -0.2 0.4].
	want := []float64{0.6, -0.7, -0.2, 0.4}
	for i := range want {
		assert.InDelta(t, want[i], inv[i], 1e-14)
	}
	// a untouched
	assert.Equal(t, 4.0, a[0])

	// identity check for a 3x3 with a zero leading pivot, forcing a swap
	b := []float64{
		0, 1, 2,
		3, 4, 5,
		6, 7, 9,
	}
	binv := make([]float64, 9)
	require.NoError(t, invertBlock(3, b, binv, defaultPivotTol))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += b[i*3+k] * binv[k*3+j]
			}
			id := 0.0
			if i == j {
				id = 1
			}
			if math.Abs(s-id) > 1e-12 {
				t.Errorf("b*binv at (%d,%d): got %v, want %v", i, j, s, id)
			}
		}
	}
}

func TestInvertBlockScalar(t *testing.T) {
	inv := make([]float64, 1)
	require.NoError(t, invertBlock(1, []float64{4}, inv, defaultPivotTol))
	assert.Equal(t, 0.25, inv[0])
	err := invertBlock(1, []float64{0}, inv, defaultPivotTol)
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestInvertBlockSingular(t *testing.T) {
	// Rank-deficient: second row is twice the first.
	a := []float64{
		1, 2,
		2, 4,
	}
	inv := make([]float64, 4)
	err := invertBlock(2, a, inv, defaultPivotTol)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular))

	err = invertBlock(2, make([]float64, 4), inv, defaultPivotTol)
	assert.True(t, errors.Is(err, ErrSingular))
}
