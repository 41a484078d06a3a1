package bpmat

// 6x6 block kernels with constant loop bounds. Block size 6 carries the
// common shell element layout of three displacements and three
// rotations per node.

func matVecAdd6(a, x, y []float64) {
	const n = 6
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		y[i] += ai[0]*x[0] + ai[1]*x[1] + ai[2]*x[2] +
			ai[3]*x[3] + ai[4]*x[4] + ai[5]*x[5]
	}
}

func matVecSub6(a, x, y []float64) {
	const n = 6
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		y[i] -= ai[0]*x[0] + ai[1]*x[1] + ai[2]*x[2] +
			ai[3]*x[3] + ai[4]*x[4] + ai[5]*x[5]
	}
}

func gemmSub6(a, b, c []float64) {
	const n = 6
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		ci := c[i*n : i*n+n]
		for j := 0; j < n; j++ {
			ci[j] -= ai[0]*b[j] + ai[1]*b[n+j] + ai[2]*b[2*n+j] +
				ai[3]*b[3*n+j] + ai[4]*b[4*n+j] + ai[5]*b[5*n+j]
		}
	}
}

func postMul6(a, b, t []float64) {
	const n = 6
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		ti := t[i*n : i*n+n]
		for j := 0; j < n; j++ {
			ti[j] = ai[0]*b[j] + ai[1]*b[n+j] + ai[2]*b[2*n+j] +
				ai[3]*b[3*n+j] + ai[4]*b[4*n+j] + ai[5]*b[5*n+j]
		}
	}
	copy(a[:n*n], t[:n*n])
}
