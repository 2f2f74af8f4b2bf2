package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Thresholds parameterises the criteria battery.
type Thresholds struct {
	RMSEStdFactor        float64 `json:"rmse_std_factor" yaml:"rmse_std_factor"`
	MinCorrelation       float64 `json:"min_correlation" yaml:"min_correlation"`
	PerturbFraction      float64 `json:"perturb_fraction" yaml:"perturb_fraction"`
	MaxMeanShift         float64 `json:"max_mean_shift" yaml:"max_mean_shift"`
	MaxVarianceShift     float64 `json:"max_variance_shift" yaml:"max_variance_shift"`
	PersistenceWindow    int     `json:"persistence_window" yaml:"persistence_window"`
	ReplicationTolerance float64 `json:"replication_tolerance" yaml:"replication_tolerance"`
	ForcingOffset        float64 `json:"forcing_offset" yaml:"forcing_offset"`
	EnsembleSize         int     `json:"ensemble_size" yaml:"ensemble_size"`
	MaxEnsembleSpread    float64 `json:"max_ensemble_spread" yaml:"max_ensemble_spread"`
	MaxDominance         float64 `json:"max_dominance" yaml:"max_dominance"`
	PersistenceFactor    float64 `json:"persistence_factor" yaml:"persistence_factor"`
	EmergenceFactor      float64 `json:"emergence_factor" yaml:"emergence_factor"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RMSEStdFactor:        0.6,
		MinCorrelation:       0.7,
		PerturbFraction:      0.1,
		MaxMeanShift:         0.5,
		MaxVarianceShift:     0.5,
		PersistenceWindow:    50,
		ReplicationTolerance: 0.3,
		ForcingOffset:        0.5,
		EnsembleSize:         5,
		MaxEnsembleSpread:    1.0,
		MaxDominance:         0.05,
		PersistenceFactor:    1.5,
		EmergenceFactor:      0.2,
	}
}

func (t Thresholds) Validate() error {
	if t.RMSEStdFactor <= 0 {
		return errors.New("rmse_std_factor must be > 0")
	}
	if t.MinCorrelation < -1 || t.MinCorrelation > 1 {
		return fmt.Errorf("min_correlation must be within [-1, 1], got %f", t.MinCorrelation)
	}
	if t.PerturbFraction < 0 {
		return errors.New("perturb_fraction must be >= 0")
	}
	if t.PersistenceWindow < 2 {
		return fmt.Errorf("persistence_window must be >= 2, got %d", t.PersistenceWindow)
	}
	if t.EnsembleSize < 2 {
		return fmt.Errorf("ensemble_size must be >= 2, got %d", t.EnsembleSize)
	}
	if t.MaxDominance <= 0 || t.MaxDominance > 1 {
		return fmt.Errorf("max_dominance must be within (0, 1], got %f", t.MaxDominance)
	}
	return nil
}

// Override returns a copy with the named fields replaced. Names are the
// json keys of Thresholds.
func (t Thresholds) Override(values map[string]float64) (Thresholds, error) {
	out := t
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := values[name]
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "rmse_std_factor":
			out.RMSEStdFactor = v
		case "min_correlation":
			out.MinCorrelation = v
		case "perturb_fraction":
			out.PerturbFraction = v
		case "max_mean_shift":
			out.MaxMeanShift = v
		case "max_variance_shift":
			out.MaxVarianceShift = v
		case "persistence_window":
			out.PersistenceWindow = int(v)
		case "replication_tolerance":
			out.ReplicationTolerance = v
		case "forcing_offset":
			out.ForcingOffset = v
		case "ensemble_size":
			out.EnsembleSize = int(v)
		case "max_ensemble_spread":
			out.MaxEnsembleSpread = v
		case "max_dominance":
			out.MaxDominance = v
		case "persistence_factor":
			out.PersistenceFactor = v
		case "emergence_factor":
			out.EmergenceFactor = v
		default:
			return Thresholds{}, fmt.Errorf("unknown threshold %q", name)
		}
	}
	return out, out.Validate()
}

// Seeds fixes the random source of every run in the battery. Ensemble
// member i uses EnsemblePerturbation+i and EnsembleRun+i.
type Seeds struct {
	Calibration          int64 `json:"calibration" yaml:"calibration"`
	Macro                int64 `json:"macro" yaml:"macro"`
	Reduced              int64 `json:"reduced" yaml:"reduced"`
	Perturbed            int64 `json:"perturbed" yaml:"perturbed"`
	PerturbationDraw     int64 `json:"perturbation_draw" yaml:"perturbation_draw"`
	Replication          int64 `json:"replication" yaml:"replication"`
	Validity             int64 `json:"validity" yaml:"validity"`
	EnsemblePerturbation int64 `json:"ensemble_perturbation" yaml:"ensemble_perturbation"`
	EnsembleRun          int64 `json:"ensemble_run" yaml:"ensemble_run"`
}

func DefaultSeeds() Seeds {
	return Seeds{
		Calibration:          2,
		Macro:                3,
		Reduced:              4,
		Perturbed:            5,
		PerturbationDraw:     10,
		Replication:          6,
		Validity:             7,
		EnsemblePerturbation: 20,
		EnsembleRun:          30,
	}
}
