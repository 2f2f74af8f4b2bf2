package calibration

import "math"

const (
	DefaultAlpha = 0.05
	DefaultBeta  = 0.02

	minAlpha = 0.001
	maxAlpha = 0.5
	minBeta  = 0.001
	maxBeta  = 1.0

	singularTolerance = 1e-12
)

// LinearFit holds the coefficients of x[t+1] = x[t] + alpha*(F[t] - beta*x[t]).
type LinearFit struct {
	Alpha float64
	Beta  float64
	// OK is false when the defaults were returned because the system was
	// degenerate or too short.
	OK bool
}

// FitLinearRecursion regresses the first differences of obs on forcing and
// the current level, dx = a*F + b*x, through the 2x2 normal equations. The
// coefficients map to alpha = a and beta = -b/alpha, each clamped into a
// stable range.
func FitLinearRecursion(obs, forcing []float64) LinearFit {
	n := len(obs) - 1
	if len(forcing) < n {
		n = len(forcing)
	}
	if n < 2 {
		return LinearFit{Alpha: DefaultAlpha, Beta: DefaultBeta}
	}

	var sff, sxx, sfx, sfy, sxy float64
	for t := 0; t < n; t++ {
		y := obs[t+1] - obs[t]
		f := forcing[t]
		x := obs[t]
		sff += f * f
		sxx += x * x
		sfx += f * x
		sfy += f * y
		sxy += x * y
	}
	// Collinear forcing and state leave the system singular up to rounding.
	det := sff*sxx - sfx*sfx
	if !(math.Abs(det) > singularTolerance*sff*sxx) || math.IsInf(det, 0) {
		return LinearFit{Alpha: DefaultAlpha, Beta: DefaultBeta}
	}
	a := (sfy*sxx - sxy*sfx) / det
	b := (sff*sxy - sfy*sfx) / det

	alpha := clamp(a, minAlpha, maxAlpha)
	beta := clamp(-b/alpha, minBeta, maxBeta)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return LinearFit{Alpha: DefaultAlpha, Beta: DefaultBeta}
	}
	return LinearFit{Alpha: alpha, Beta: beta, OK: true}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
