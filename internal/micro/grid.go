package micro

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"scalebridge/internal/forcing"
)

// GridConfig configures the two-way coupled diffusion automaton.
type GridConfig struct {
	Size          int
	Diffusion     float64
	Noise         float64
	MacroCoupling float64
	ForcingScale  float64
	Damping       float64

	InitialValue    float64
	InitialNoise    float64
	AuxInitial      float64
	AuxInitialNoise float64
	AuxTarget       float64
	AuxRelaxation   float64
	AuxForcingGain  float64

	AssimilationStrength float64

	// Used only when GridInputs.Forcing is empty.
	ForcingBase           float64
	ForcingTrend          float64
	ForcingSeasonalAmp    float64
	ForcingSeasonalPeriod float64
}

func DefaultGridConfig() GridConfig {
	return GridConfig{
		Size:                  10,
		Diffusion:             0.2,
		Noise:                 0.01,
		MacroCoupling:         0.4,
		ForcingScale:          0.02,
		Damping:               0.05,
		InitialValue:          0,
		InitialNoise:          0.5,
		AuxInitial:            0.5,
		AuxInitialNoise:       0.05,
		AuxTarget:             0.5,
		AuxRelaxation:         0.05,
		AuxForcingGain:        0.001,
		ForcingBase:           1.0,
		ForcingTrend:          0.005,
		ForcingSeasonalAmp:    0.3,
		ForcingSeasonalPeriod: 50,
	}
}

func (c GridConfig) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("grid size must be >= 1, got %d", c.Size)
	}
	if c.Noise < 0 || c.InitialNoise < 0 || c.AuxInitialNoise < 0 {
		return errors.New("grid noise amplitudes must be >= 0")
	}
	for name, v := range map[string]float64{
		"diffusion":      c.Diffusion,
		"macro_coupling": c.MacroCoupling,
		"forcing_scale":  c.ForcingScale,
		"damping":        c.Damping,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("grid %s must be finite", name)
		}
	}
	return nil
}

// GridInputs carries optional exogenous series. Missing assimilation values
// are encoded as NaN.
type GridInputs struct {
	Forcing      []float64
	Assimilation []float64
}

// Grid is an immutable n x n snapshot of one field.
type Grid struct {
	size  int
	cells []float64
}

func (g Grid) Size() int {
	return g.size
}

func (g Grid) At(i, j int) float64 {
	return g.cells[i*g.size+j]
}

func (g Grid) Mean() float64 {
	return meanOf(g.cells)
}

// Values returns a row-major copy of the cells.
func (g Grid) Values() []float64 {
	return append([]float64(nil), g.cells...)
}

type GridResult struct {
	Aggregate    []float64
	AuxAggregate []float64
	Snapshots    []Grid
	Forcing      []float64
}

// CellSeries returns the primary-field trajectory of every cell, row-major.
func (r GridResult) CellSeries() [][]float64 {
	if len(r.Snapshots) == 0 {
		return nil
	}
	cells := len(r.Snapshots[0].cells)
	out := make([][]float64, cells)
	for c := range out {
		out[c] = make([]float64, len(r.Snapshots))
	}
	for t, snap := range r.Snapshots {
		for c, v := range snap.cells {
			out[c][t] = v
		}
	}
	return out
}

// GridNeighbors lists the orthogonal in-bounds neighbours of every cell of an
// n x n grid, row-major.
func GridNeighbors(n int) [][]int {
	out := make([][]int, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var nbrs []int
			if i > 0 {
				nbrs = append(nbrs, (i-1)*n+j)
			}
			if i < n-1 {
				nbrs = append(nbrs, (i+1)*n+j)
			}
			if j > 0 {
				nbrs = append(nbrs, i*n+j-1)
			}
			if j < n-1 {
				nbrs = append(nbrs, i*n+j+1)
			}
			out[i*n+j] = nbrs
		}
	}
	return out
}

// RunGrid advances the grid for horizon steps. Every step reads the pre-step
// global mean, updates all cells from the previous grid only, then appends
// the post-step mean and a snapshot.
func RunGrid(cfg GridConfig, in GridInputs, horizon int, seed int64) (GridResult, error) {
	if err := cfg.Validate(); err != nil {
		return GridResult{}, err
	}
	if horizon < 0 {
		return GridResult{}, fmt.Errorf("horizon must be >= 0, got %d", horizon)
	}

	var drive []float64
	if len(in.Forcing) > 0 {
		var err error
		drive, err = forcing.Passthrough(in.Forcing, horizon)
		if err != nil {
			return GridResult{}, err
		}
	} else {
		drive = forcing.TrendSeasonal(horizon, cfg.ForcingBase, cfg.ForcingTrend, cfg.ForcingSeasonalAmp, cfg.ForcingSeasonalPeriod)
	}

	rng := rand.New(rand.NewSource(seed))
	n := cfg.Size
	cells := n * n

	cur := make([]float64, cells)
	next := make([]float64, cells)
	aux := make([]float64, cells)
	auxNext := make([]float64, cells)
	for c := range cur {
		cur[c] = cfg.InitialValue + uniform(rng, cfg.InitialNoise)
	}
	for c := range aux {
		aux[c] = cfg.AuxInitial + uniform(rng, cfg.AuxInitialNoise)
	}
	neighbors := GridNeighbors(n)

	result := GridResult{
		Aggregate:    make([]float64, 0, horizon),
		AuxAggregate: make([]float64, 0, horizon),
		Snapshots:    make([]Grid, 0, horizon),
		Forcing:      drive,
	}

	for t := 0; t < horizon; t++ {
		globalMean := meanOf(cur)
		f := drive[t]

		for c := 0; c < cells; c++ {
			x := cur[c]
			nbrMean := x
			if nbrs := neighbors[c]; len(nbrs) > 0 {
				sum := 0.0
				for _, j := range nbrs {
					sum += cur[j]
				}
				nbrMean = sum / float64(len(nbrs))
			}
			next[c] = x +
				cfg.Diffusion*(nbrMean-x) +
				cfg.ForcingScale*f +
				cfg.MacroCoupling*(globalMean-x) -
				cfg.Damping*x +
				uniform(rng, cfg.Noise)
			auxNext[c] = aux[c] + cfg.AuxRelaxation*(cfg.AuxTarget-aux[c]) + cfg.AuxForcingGain*f
		}

		if t < len(in.Assimilation) {
			if target := in.Assimilation[t]; !math.IsNaN(target) {
				nudge := cfg.AssimilationStrength * (target - globalMean)
				for c := range next {
					next[c] += nudge
				}
			}
		}

		cur, next = next, cur
		aux, auxNext = auxNext, aux

		result.Aggregate = append(result.Aggregate, meanOf(cur))
		result.AuxAggregate = append(result.AuxAggregate, meanOf(aux))
		result.Snapshots = append(result.Snapshots, Grid{size: n, cells: append([]float64(nil), cur...)})
	}
	return result, nil
}
