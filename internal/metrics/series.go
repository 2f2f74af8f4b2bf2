package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NormalizationEpsilon replaces a zero range when rescaling a flat series.
const NormalizationEpsilon = 1e-6

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// align truncates both series to their common prefix length.
func align(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[:n], b[:n]
}

func Mean(xs []float64) Value {
	if len(xs) == 0 || !allFinite(xs) {
		return Undefined()
	}
	return Defined(stat.Mean(xs, nil))
}

// Variance is the population variance of xs.
func Variance(xs []float64) Value {
	if len(xs) == 0 || !allFinite(xs) {
		return Undefined()
	}
	if len(xs) == 1 {
		return Defined(0)
	}
	return Defined(stat.PopVariance(xs, nil))
}

func StdDev(xs []float64) Value {
	v, ok := Variance(xs).Float()
	if !ok {
		return Undefined()
	}
	return Defined(math.Sqrt(v))
}

// RMSE compares the common prefix of sim and obs.
func RMSE(sim, obs []float64) Value {
	sim, obs = align(sim, obs)
	if len(sim) == 0 || !allFinite(sim) || !allFinite(obs) {
		return Undefined()
	}
	sum := 0.0
	for i := range sim {
		d := sim[i] - obs[i]
		sum += d * d
	}
	return Defined(math.Sqrt(sum / float64(len(sim))))
}

// NormalizedRMSE min-max rescales both series to [0,1] before comparing them.
func NormalizedRMSE(sim, obs []float64) Value {
	sim, obs = align(sim, obs)
	if len(sim) == 0 || !allFinite(sim) || !allFinite(obs) {
		return Undefined()
	}
	return RMSE(MinMaxScale(sim, 1), MinMaxScale(obs, 1))
}

// MinMaxScale maps xs onto [0, scale]. A flat series uses NormalizationEpsilon
// as its range.
func MinMaxScale(xs []float64, scale float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	lo := floats.Min(xs)
	hi := floats.Max(xs)
	span := hi - lo
	if span == 0 {
		span = NormalizationEpsilon
	}
	for i, v := range xs {
		out[i] = (v - lo) / span * scale
	}
	return out
}

// Correlation is the Pearson correlation of the common prefix. It is
// undefined when either side has zero variance.
func Correlation(x, y []float64) Value {
	x, y = align(x, y)
	if len(x) < 2 || !allFinite(x) || !allFinite(y) {
		return Undefined()
	}
	if stat.PopVariance(x, nil) == 0 || stat.PopVariance(y, nil) == 0 {
		return Undefined()
	}
	return Defined(stat.Correlation(x, y, nil))
}

// WindowVariance averages the population variance of every sliding window of
// the given length. Series shorter than the window fall back to one window
// spanning the whole series.
func WindowVariance(xs []float64, window int) Value {
	if window < 2 || len(xs) == 0 || !allFinite(xs) {
		return Undefined()
	}
	if len(xs) <= window {
		return Variance(xs)
	}
	count := len(xs) - window + 1
	total := 0.0
	for start := 0; start < count; start++ {
		total += stat.PopVariance(xs[start:start+window], nil)
	}
	return Defined(total / float64(count))
}

// Spread is max - min of the defined values. Undefined entries make the
// spread undefined.
func Spread(values []Value) Value {
	if len(values) == 0 {
		return Undefined()
	}
	raw := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := v.Float()
		if !ok {
			return Undefined()
		}
		raw = append(raw, f)
	}
	return Defined(floats.Max(raw) - floats.Min(raw))
}
