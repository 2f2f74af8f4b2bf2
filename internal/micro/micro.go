// Package micro implements the disaggregated simulators: a diffusive grid
// automaton with macro feedback, a heterogeneous-agent liquidation cascade,
// and a three-node supply chain with transport delays.
//
// Every run builds its own random source from the supplied seed, so runs are
// reproducible and safe to execute concurrently.
package micro

import "math/rand"

// uniform draws from [-amp, amp). It always consumes one value from rng so
// that the draw sequence does not depend on amp.
func uniform(rng *rand.Rand, amp float64) float64 {
	return (2*rng.Float64() - 1) * amp
}

func uniformRange(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
