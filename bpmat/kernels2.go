package bpmat

// Fully unrolled 2x2 block kernels.

func matVecAdd2(a, x, y []float64) {
	y[0] += a[0]*x[0] + a[1]*x[1]
	y[1] += a[2]*x[0] + a[3]*x[1]
}

func matVecSub2(a, x, y []float64) {
	y[0] -= a[0]*x[0] + a[1]*x[1]
	y[1] -= a[2]*x[0] + a[3]*x[1]
}

func gemmSub2(a, b, c []float64) {
	c[0] -= a[0]*b[0] + a[1]*b[2]
	c[1] -= a[0]*b[1] + a[1]*b[3]
	c[2] -= a[2]*b[0] + a[3]*b[2]
	c[3] -= a[2]*b[1] + a[3]*b[3]
}

func postMul2(a, b, t []float64) {
	t[0] = a[0]*b[0] + a[1]*b[2]
	t[1] = a[0]*b[1] + a[1]*b[3]
	t[2] = a[2]*b[0] + a[3]*b[2]
	t[3] = a[2]*b[1] + a[3]*b[3]
	a[0], a[1], a[2], a[3] = t[0], t[1], t[2], t[3]
}
