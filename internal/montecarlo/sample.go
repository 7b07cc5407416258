package montecarlo

import (
	"math"
	"math/rand"
)

// samplePERT draws a duration from the Beta-PERT distribution defined by the
// triple (optimistic, mostLikely, pessimistic):
//
//	alpha = 1 + 4(M-O)/(P-O), beta = 1 + 4(P-M)/(P-O)
//
// scaled back onto [O, P]. Degenerate when O = P (returns M).
func samplePERT(rng *rand.Rand, o, m, p float64) float64 {
	spread := p - o
	if spread < 1e-9 {
		return m
	}
	alpha := 1 + 4*(m-o)/spread
	beta := 1 + 4*(p-m)/spread
	return o + sampleBeta(rng, alpha, beta)*spread
}

// sampleBeta draws from Beta(a, b) as Ga/(Ga+Gb). Both shape parameters are
// always >= 1 here, so the plain Marsaglia-Tsang gamma sampler applies.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) for shape >= 1 using the
// Marsaglia-Tsang squeeze method.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
