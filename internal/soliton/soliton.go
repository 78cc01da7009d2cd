// Package soliton builds the Robust Soliton degree distribution used by
// the LT fountain codec and draws degrees from it.
//
// Grounded on the CDF construction in the teacher's
// builtin/meshtastic/fountain.go (buildRobustSolitonCDF), generalized to
// the degenerate K<=0 case spec.md calls for.
package soliton

import (
	"math"

	"github.com/johntiver92-beep/meshtastic-apple/internal/javarand"
)

const (
	c     = 0.1
	delta = 0.5
)

// CDF holds the cumulative distribution over degrees 1..K; CDF[d] is the
// probability mass at or below degree d. CDF[0] is unused padding so
// degrees can index directly.
type CDF []float64

// Build constructs the Robust Soliton CDF for K source blocks. For K<=0
// it returns the degenerate single-point distribution [1.0] per spec.
func Build(k int) CDF {
	if k <= 0 {
		return CDF{1.0}
	}

	kf := float64(k)
	cdf := make(CDF, k+1)

	rho := make([]float64, k+1)
	rho[1] = 1.0 / kf
	for d := 2; d <= k; d++ {
		rho[d] = 1.0 / float64(d*(d-1))
	}

	s := c * math.Log(kf/delta) * math.Sqrt(kf)
	threshold := int(math.Floor(kf / s))

	tau := make([]float64, k+1)
	for d := 1; d <= k; d++ {
		switch {
		case d < threshold:
			tau[d] = s / (kf * float64(d))
		case d == threshold:
			tau[d] = s * math.Log(s/delta) / kf
		}
	}

	mu := make([]float64, k+1)
	z := 0.0
	for d := 1; d <= k; d++ {
		mu[d] = rho[d] + tau[d]
		z += mu[d]
	}

	cum := 0.0
	for d := 1; d <= k; d++ {
		cum += mu[d] / z
		cdf[d] = cum
	}

	return cdf
}

// Draw samples a degree in [1, K] from the CDF using u. It always
// advances rng by exactly one NextDouble call, matching the peer's
// "always sample, then possibly override" protocol for block 0.
func Draw(rng *javarand.Source, cdf CDF) int {
	u := rng.NextDouble()
	if len(cdf) == 1 {
		// Degenerate distribution: single point mass, always degree 1.
		return 1
	}
	k := len(cdf) - 1
	for d := 1; d <= k; d++ {
		if u <= cdf[d] {
			return d
		}
	}
	return k
}
