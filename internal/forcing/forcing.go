// Package forcing builds the exogenous driving series shared by the micro and
// macro simulators. Index t of a forcing series is the simulation step t at
// both scales.
package forcing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrTooShort = errors.New("forcing series shorter than horizon")

// TrendSeasonal returns base + trend*t + amp*sin(2*pi*t/period).
func TrendSeasonal(steps int, base, trend, amp, period float64) []float64 {
	if steps < 0 {
		steps = 0
	}
	out := make([]float64, steps)
	for t := range out {
		seasonal := 0.0
		if period != 0 {
			seasonal = amp * math.Sin(2.0*math.Pi*float64(t)/period)
		}
		out[t] = base + trend*float64(t) + seasonal
	}
	return out
}

func Constant(steps int, value float64) []float64 {
	if steps < 0 {
		steps = 0
	}
	out := make([]float64, steps)
	for t := range out {
		out[t] = value
	}
	return out
}

// Passthrough copies the supplied series after checking it covers horizon.
func Passthrough(series []float64, horizon int) ([]float64, error) {
	if len(series) < horizon {
		return nil, fmt.Errorf("%w: len=%d horizon=%d", ErrTooShort, len(series), horizon)
	}
	return append([]float64(nil), series...), nil
}

// Offset returns a new series shifted uniformly by delta.
func Offset(series []float64, delta float64) []float64 {
	out := make([]float64, len(series))
	for t, v := range series {
		out[t] = v + delta
	}
	return out
}

// Lag shifts series one step later, using first for the vacated slot.
func Lag(series []float64, first float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]float64, len(series))
	out[0] = first
	copy(out[1:], series[:len(series)-1])
	return out
}

// Blend returns a + weightB*b over the common prefix.
func Blend(a, b []float64, weightB float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float64, n)
	for t := 0; t < n; t++ {
		out[t] = a[t] + weightB*b[t]
	}
	return out
}

// Trend is the least-squares line through a series indexed 0..n-1.
type Trend struct {
	Slope     float64
	Intercept float64
}

func (tr Trend) At(t int) float64 {
	return tr.Intercept + tr.Slope*float64(t)
}

func FitTrend(values []float64) Trend {
	n := float64(len(values))
	if len(values) == 0 {
		return Trend{}
	}
	if len(values) == 1 {
		return Trend{Intercept: values[0]}
	}
	var sumT, sumY, sumTT, sumTY float64
	for i, y := range values {
		t := float64(i)
		sumT += t
		sumY += y
		sumTT += t * t
		sumTY += t * y
	}
	den := n*sumTT - sumT*sumT
	if den == 0 {
		return Trend{Intercept: sumY / n}
	}
	slope := (n*sumTY - sumT*sumY) / den
	return Trend{Slope: slope, Intercept: (sumY - slope*sumT) / n}
}

// SeasonalTrendFromTraining builds the month-of-year climatology of the
// training window plus its linear trend, evaluated over allDates. Months
// absent from the training window contribute zero seasonal offset.
func SeasonalTrendFromTraining(trainDates []time.Time, trainValues []float64, allDates []time.Time) ([]float64, Trend, error) {
	if len(trainDates) != len(trainValues) {
		return nil, Trend{}, fmt.Errorf("training dates/values length mismatch: %d vs %d", len(trainDates), len(trainValues))
	}
	if len(trainValues) == 0 {
		return nil, Trend{}, errors.New("training window is empty")
	}

	var sums, counts [13]float64
	for i, d := range trainDates {
		m := int(d.Month())
		sums[m] += trainValues[i]
		counts[m]++
	}
	var seasonal [13]float64
	for m := 1; m <= 12; m++ {
		if counts[m] > 0 {
			seasonal[m] = sums[m] / counts[m]
		}
	}

	trend := FitTrend(trainValues)
	out := make([]float64, len(allDates))
	for t, d := range allDates {
		out[t] = seasonal[int(d.Month())] + trend.At(t)
	}
	return out, trend, nil
}
