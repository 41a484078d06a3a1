package bpmat

// Block size 1 reduces every operation to scalar arithmetic.

func matVecAdd1(a, x, y []float64) {
	y[0] += a[0] * x[0]
}

func matVecSub1(a, x, y []float64) {
	y[0] -= a[0] * x[0]
}

func gemmSub1(a, b, c []float64) {
	c[0] -= a[0] * b[0]
}

func postMul1(a, b, _ []float64) {
	a[0] *= b[0]
}
