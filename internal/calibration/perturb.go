package calibration

import (
	"math/rand"

	"scalebridge/internal/model"
)

// Perturb returns a copy of params where every named key present in params
// is shifted by U(-pct*|v|, pct*|v|). Keys are drawn in the given order from
// a source seeded with seed, so the same call always yields the same set.
func Perturb(params model.ParameterSet, keys []string, pct float64, seed int64) model.ParameterSet {
	rng := rand.New(rand.NewSource(seed))
	out := params
	for _, key := range keys {
		v, ok := params.Get(key)
		if !ok {
			continue
		}
		spread := pct * v
		if spread < 0 {
			spread = -spread
		}
		out = out.With(key, v+(rng.Float64()*2-1)*spread)
	}
	return out
}
