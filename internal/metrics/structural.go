package metrics

import "math"

// Panel holds one time series per interacting unit (cell, agent, node).
// Neighbors[i] lists the units that interact with unit i; a nil Neighbors
// slice means every unit interacts with every other unit.
type Panel struct {
	Series    [][]float64
	Neighbors [][]int
}

func (p Panel) Units() int {
	return len(p.Series)
}

// Cohesion returns the internal cohesion (mean correlation of each unit with
// the mean of its neighbours) and the external cohesion (mean correlation of
// each unit with the forcing alone). Units whose correlation is undefined
// contribute zero.
func Cohesion(p Panel, forcing []float64) (internal, external Value) {
	n := p.Units()
	if n == 0 {
		return Undefined(), Undefined()
	}
	steps := len(p.Series[0])
	for _, s := range p.Series {
		if len(s) < steps {
			steps = len(s)
		}
	}
	if steps < 2 {
		return Undefined(), Undefined()
	}

	var totals []float64
	if p.Neighbors == nil {
		totals = make([]float64, steps)
		for _, s := range p.Series {
			for t := 0; t < steps; t++ {
				totals[t] += s[t]
			}
		}
	}

	internalSum, externalSum := 0.0, 0.0
	internalCount := 0
	neighborMean := make([]float64, steps)
	for i, s := range p.Series {
		s = s[:steps]
		externalSum += Correlation(s, forcing).Or(0)

		if p.Neighbors == nil {
			if n < 2 {
				continue
			}
			for t := 0; t < steps; t++ {
				neighborMean[t] = (totals[t] - s[t]) / float64(n-1)
			}
		} else {
			nbrs := p.Neighbors[i]
			if len(nbrs) == 0 {
				continue
			}
			for t := 0; t < steps; t++ {
				sum := 0.0
				for _, j := range nbrs {
					sum += p.Series[j][t]
				}
				neighborMean[t] = sum / float64(len(nbrs))
			}
		}
		internalSum += Correlation(s, neighborMean).Or(0)
		internalCount++
	}

	external = Defined(externalSum / float64(n))
	if internalCount == 0 {
		return Undefined(), external
	}
	return Defined(internalSum / float64(internalCount)), external
}

// DominanceShare is the largest time-averaged share |x_i| / sum_j |x_j| held
// by a single unit. Steps with a zero total are skipped.
func DominanceShare(series [][]float64) Value {
	if len(series) == 0 {
		return Undefined()
	}
	steps := len(series[0])
	for _, s := range series {
		if len(s) < steps {
			steps = len(s)
		}
	}
	shares := make([]float64, len(series))
	counted := 0
	for t := 0; t < steps; t++ {
		total := 0.0
		for _, s := range series {
			total += math.Abs(s[t])
		}
		if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
			continue
		}
		for i, s := range series {
			shares[i] += math.Abs(s[t]) / total
		}
		counted++
	}
	if counted == 0 {
		return Defined(0)
	}
	best := 0.0
	for _, v := range shares {
		if share := v / float64(counted); share > best {
			best = share
		}
	}
	return Defined(best)
}

// CascadeSummary reports the peak and total of a liquidation volume series.
func CascadeSummary(liquidations []float64) (peak, total float64) {
	for _, v := range liquidations {
		total += v
		if v > peak {
			peak = v
		}
	}
	return peak, total
}

// BullwhipRatio is var(orders) / var(demand); zero demand variance yields 0.
func BullwhipRatio(demand, orders []float64) Value {
	vd, ok := Variance(demand).Float()
	if !ok {
		return Undefined()
	}
	vo, ok := Variance(orders).Float()
	if !ok {
		return Undefined()
	}
	if vd == 0 {
		return Defined(0)
	}
	return Defined(vo / vd)
}
