package detector

import "math"

// fitExponentialDecay fits y = a*exp(-b*x) via a bounded Levenberg-Marquardt
// solver. Deliberately hand-rolled rather than pulling in a numerics
// framework: two parameters, a bounded domain, and a handful of points per
// scan do not justify a general-purpose dependency (spec.md §9).
//
// Initial guess: a = ys[0], b = 0.1. Bounds: a > 0, 0 < b <= 1.0. Stops
// after at most 5000 iterations, or when an accepted step lowers the sum of
// squared residuals by less than tol.
func fitExponentialDecay(xs, ys []float64) (a, b float64, ok bool) {
	n := len(xs)
	if n < 2 {
		return 0, 0, false
	}

	a = ys[0]
	if a <= 0 {
		a = 0.01
	}
	b = 0.1

	const (
		maxIter  = 5000
		lambda0  = 1e-3
		tol      = 1e-10
		minA     = 1e-6
		maxB     = 1.0
		minB     = 1e-6
	)
	lambda := lambda0

	residual := func(a, b float64) []float64 {
		r := make([]float64, n)
		for i := range xs {
			r[i] = ys[i] - a*math.Exp(-b*xs[i])
		}
		return r
	}
	sse := func(r []float64) float64 {
		s := 0.0
		for _, v := range r {
			s += v * v
		}
		return s
	}

	r := residual(a, b)
	prevSSE := sse(r)

	for iter := 0; iter < maxIter; iter++ {
		// Jacobian of the residual w.r.t. (a,b): d r_i/d a = -exp(-b x_i),
		// d r_i/d b = a*x_i*exp(-b x_i).
		var jtjAA, jtjAB, jtjBB float64
		var jtrA, jtrB float64
		for i := range xs {
			e := math.Exp(-b * xs[i])
			dA := -e
			dB := a * xs[i] * e
			jtjAA += dA * dA
			jtjAB += dA * dB
			jtjBB += dB * dB
			jtrA += dA * r[i]
			jtrB += dB * r[i]
		}

		// Damped normal equations: (J^T J + lambda*diag(J^T J)) delta = -J^T r
		m00 := jtjAA * (1 + lambda)
		m11 := jtjBB * (1 + lambda)
		m01 := jtjAB
		det := m00*m11 - m01*m01
		if math.Abs(det) < 1e-15 {
			break
		}
		rhs0 := -jtrA
		rhs1 := -jtrB
		deltaA := (rhs0*m11 - m01*rhs1) / det
		deltaB := (m00*rhs1 - m01*rhs0) / det

		candA := clamp(a+deltaA, minA, math.MaxFloat64)
		candB := clamp(b+deltaB, minB, maxB)

		candR := residual(candA, candB)
		candSSE := sse(candR)

		if candSSE < prevSSE {
			a, b = candA, candB
			r = candR
			if prevSSE-candSSE < tol {
				prevSSE = candSSE
				break
			}
			prevSSE = candSSE
			lambda *= 0.7
		} else {
			lambda *= 2
			if lambda > 1e12 {
				break
			}
		}
	}

	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return 0, 0, false
	}
	if a <= 0 || b <= 0 || b > maxB {
		return 0, 0, false
	}
	return a, b, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
