package bpmat

// 5x5 block kernels with constant loop bounds.

func matVecAdd5(a, x, y []float64) {
	const n = 5
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		y[i] += ai[0]*x[0] + ai[1]*x[1] + ai[2]*x[2] + ai[3]*x[3] + ai[4]*x[4]
	}
}

func matVecSub5(a, x, y []float64) {
	const n = 5
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		y[i] -= ai[0]*x[0] + ai[1]*x[1] + ai[2]*x[2] + ai[3]*x[3] + ai[4]*x[4]
	}
}

func gemmSub5(a, b, c []float64) {
	const n = 5
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		ci := c[i*n : i*n+n]
		for j := 0; j < n; j++ {
			ci[j] -= ai[0]*b[j] + ai[1]*b[n+j] + ai[2]*b[2*n+j] + ai[3]*b[3*n+j] + ai[4]*b[4*n+j]
		}
	}
}

func postMul5(a, b, t []float64) {
	const n = 5
	for i := 0; i < n; i++ {
		ai := a[i*n : i*n+n]
		ti := t[i*n : i*n+n]
		for j := 0; j < n; j++ {
			ti[j] = ai[0]*b[j] + ai[1]*b[n+j] + ai[2]*b[2*n+j] + ai[3]*b[3*n+j] + ai[4]*b[4*n+j]
		}
	}
	copy(a[:n*n], t[:n*n])
}
