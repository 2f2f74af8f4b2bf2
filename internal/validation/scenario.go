// Package validation runs the cross-scale criteria battery: calibration,
// calibrated micro and macro runs, perturbation, replication, forcing-offset,
// ensemble and reduced-model runs, each judged against fixed thresholds.
package validation

import (
	"context"

	"scalebridge/internal/calibration"
	"scalebridge/internal/metrics"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
)

// Run purposes, used for logging and telemetry labels.
const (
	PurposeCalibration = "calibration"
	PurposeCalibrated  = "calibrated"
	PurposeReduced     = "reduced"
	PurposePerturbed   = "perturbed"
	PurposeReplication = "replication"
	PurposeValidity    = "validity"
	PurposeEnsemble    = "ensemble"
)

// Setup is what a scenario derives from a dataset before any simulation.
type Setup struct {
	Params model.ParameterSet
	// Observed is the dataset in the units the simulators are compared in
	// (anomalies, prices, stress index), over the full horizon.
	Observed     []float64
	Forcing      []float64
	Assimilation []float64
}

// RunSpec fully determines one simulator call.
type RunSpec struct {
	Params       model.ParameterSet
	Forcing      []float64
	Assimilation []float64
	Horizon      int
	Seed         int64
	Purpose      string
}

// MicroTrajectory is the part of a micro run the battery consumes.
type MicroTrajectory struct {
	Aggregate []float64
	// Bridge is the micro signal that drives the macro recursion, if any.
	Bridge []float64
	Panel  metrics.Panel
	Extras map[string]float64
}

// Scenario adapts one domain's micro and macro simulators to the engine.
type Scenario interface {
	Name() string
	Prepare(ctx context.Context, data observation.Dataset) (Setup, error)
	// FitMacro returns the fitted macro coefficients; ok is false when the
	// fit fell back to defaults.
	FitMacro(setup Setup, split int) (fitted model.ParameterSet, ok bool)
	CalibrationGrid() calibration.Grid
	PerturbKeys() []string
	// Reduce returns params with the cross-scale coupling switched off.
	Reduce(params model.ParameterSet) model.ParameterSet
	// Observe projects a simulated trajectory into observation units.
	Observe(series []float64) []float64
	RunMicro(ctx context.Context, spec RunSpec) (MicroTrajectory, error)
	RunMacro(ctx context.Context, spec RunSpec, bridge []float64) ([]float64, error)
	Thresholds() Thresholds
}

// CandidateScorer lets a scenario replace the default calibration objective
// (RMSE of the observed micro aggregate against the training window).
type CandidateScorer interface {
	ScoreCandidate(ctx context.Context, spec RunSpec, train []float64) (metrics.Value, error)
}
