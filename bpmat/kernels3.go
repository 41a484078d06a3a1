package bpmat

// Fully unrolled 3x3 block kernels.

func matVecAdd3(a, x, y []float64) {
	y[0] += a[0]*x[0] + a[1]*x[1] + a[2]*x[2]
	y[1] += a[3]*x[0] + a[4]*x[1] + a[5]*x[2]
	y[2] += a[6]*x[0] + a[7]*x[1] + a[8]*x[2]
}

func matVecSub3(a, x, y []float64) {
	y[0] -= a[0]*x[0] + a[1]*x[1] + a[2]*x[2]
	y[1] -= a[3]*x[0] + a[4]*x[1] + a[5]*x[2]
	y[2] -= a[6]*x[0] + a[7]*x[1] + a[8]*x[2]
}

func gemmSub3(a, b, c []float64) {
	c[0] -= a[0]*b[0] + a[1]*b[3] + a[2]*b[6]
	c[1] -= a[0]*b[1] + a[1]*b[4] + a[2]*b[7]
	c[2] -= a[0]*b[2] + a[1]*b[5] + a[2]*b[8]
	c[3] -= a[3]*b[0] + a[4]*b[3] + a[5]*b[6]
	c[4] -= a[3]*b[1] + a[4]*b[4] + a[5]*b[7]
	c[5] -= a[3]*b[2] + a[4]*b[5] + a[5]*b[8]
	c[6] -= a[6]*b[0] + a[7]*b[3] + a[8]*b[6]
	c[7] -= a[6]*b[1] + a[7]*b[4] + a[8]*b[7]
	c[8] -= a[6]*b[2] + a[7]*b[5] + a[8]*b[8]
}

func postMul3(a, b, t []float64) {
	t[0] = a[0]*b[0] + a[1]*b[3] + a[2]*b[6]
	t[1] = a[0]*b[1] + a[1]*b[4] + a[2]*b[7]
	t[2] = a[0]*b[2] + a[1]*b[5] + a[2]*b[8]
	t[3] = a[3]*b[0] + a[4]*b[3] + a[5]*b[6]
	t[4] = a[3]*b[1] + a[4]*b[4] + a[5]*b[7]
	t[5] = a[3]*b[2] + a[4]*b[5] + a[5]*b[8]
	t[6] = a[6]*b[0] + a[7]*b[3] + a[8]*b[6]
	t[7] = a[6]*b[1] + a[7]*b[4] + a[8]*b[7]
	t[8] = a[6]*b[2] + a[7]*b[5] + a[8]*b[8]
	copy(a[:9], t[:9])
}
