package scenario

import (
	"context"
	"math"

	"scalebridge/internal/calibration"
	"scalebridge/internal/forcing"
	"scalebridge/internal/macro"
	"scalebridge/internal/metrics"
	"scalebridge/internal/micro"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/validation"
)

// lagWeight scales the previous observation in the climate driver.
const lagWeight = 0.5

// ClimateScenario couples a regional temperature grid with a relaxation
// recursion, both driven by the training climatology and lagged
// observations.
type ClimateScenario struct {
	base
}

func climateDefaults() map[string]float64 {
	g := micro.DefaultGridConfig()
	m := macro.DefaultClimateConfig()
	return map[string]float64{
		"grid_size":             float64(g.Size),
		"diffusion":             g.Diffusion,
		"noise":                 g.Noise,
		"macro_coupling":        g.MacroCoupling,
		"forcing_scale":         g.ForcingScale,
		"damping":               g.Damping,
		"t0":                    g.InitialValue,
		"assimilation_strength": 1,
		"ode_alpha":             m.Alpha,
		"ode_beta":              m.Beta,
		"ode_noise":             m.Noise,
	}
}

func NewClimate(opts Options) (*ClimateScenario, error) {
	b, err := newBase(Climate, climateDefaults(), validation.DefaultThresholds(), opts)
	if err != nil {
		return nil, err
	}
	return &ClimateScenario{base: b}, nil
}

func (s *ClimateScenario) Name() string { return Climate }

// Prepare converts the record to anomalies and builds the driver: training
// climatology and trend plus half the previous month's anomaly. The lagged
// anomalies double as the assimilation target.
func (s *ClimateScenario) Prepare(_ context.Context, data observation.Dataset) (validation.Setup, error) {
	anom := data.Series.Anomaly()
	seasonal, _, err := forcing.SeasonalTrendFromTraining(data.TrainDates(), anom.Values[:data.Split], anom.Dates)
	if err != nil {
		return validation.Setup{}, err
	}
	first := anom.Values[0]
	return validation.Setup{
		Params:       s.params.With("t0", first),
		Observed:     anom.Values,
		Forcing:      forcing.Blend(seasonal, forcing.Lag(anom.Values, first), lagWeight),
		Assimilation: forcing.Lag(anom.Values, math.NaN()),
	}, nil
}

func (s *ClimateScenario) FitMacro(setup validation.Setup, split int) (model.ParameterSet, bool) {
	fit := calibration.FitLinearRecursion(setup.Observed[:split], setup.Forcing[:split])
	return model.NewParameterSet(map[string]float64{"ode_alpha": fit.Alpha, "ode_beta": fit.Beta}), fit.OK
}

func (s *ClimateScenario) CalibrationGrid() calibration.Grid {
	return calibration.Grid{
		{Name: "forcing_scale", Values: []float64{0.01, 0.03, 0.05, 0.1, 0.2}},
		{Name: "macro_coupling", Values: []float64{0, 0.2, 0.4}},
		{Name: "damping", Values: []float64{0, 0.02, 0.05}},
	}
}

func (s *ClimateScenario) PerturbKeys() []string {
	return []string{"diffusion", "macro_coupling", "forcing_scale", "damping"}
}

func (s *ClimateScenario) Reduce(p model.ParameterSet) model.ParameterSet {
	return p.With("macro_coupling", 0).With("forcing_scale", 0).With("assimilation_strength", 0)
}

// GridConfig maps a parameter set onto the grid simulator.
func (s *ClimateScenario) GridConfig(p model.ParameterSet) micro.GridConfig {
	cfg := micro.DefaultGridConfig()
	cfg.Size = p.Int("grid_size", cfg.Size)
	cfg.Diffusion = p.Float("diffusion", cfg.Diffusion)
	cfg.Noise = p.Float("noise", cfg.Noise)
	cfg.MacroCoupling = p.Float("macro_coupling", cfg.MacroCoupling)
	cfg.ForcingScale = p.Float("forcing_scale", cfg.ForcingScale)
	cfg.Damping = p.Float("damping", cfg.Damping)
	cfg.InitialValue = p.Float("t0", cfg.InitialValue)
	cfg.AssimilationStrength = p.Float("assimilation_strength", 0)
	return cfg
}

func (s *ClimateScenario) RunMicro(_ context.Context, spec validation.RunSpec) (validation.MicroTrajectory, error) {
	cfg := s.GridConfig(spec.Params)
	res, err := micro.RunGrid(cfg, micro.GridInputs{Forcing: spec.Forcing, Assimilation: spec.Assimilation}, spec.Horizon, spec.Seed)
	if err != nil {
		return validation.MicroTrajectory{}, err
	}
	return validation.MicroTrajectory{
		Aggregate: res.Aggregate,
		Panel:     metrics.Panel{Series: res.CellSeries(), Neighbors: micro.GridNeighbors(cfg.Size)},
		Extras:    map[string]float64{"aux_mean": metrics.Mean(res.AuxAggregate).Or(0)},
	}, nil
}

// RunMacro ignores the bridge: the climate recursion sees only the driver.
func (s *ClimateScenario) RunMacro(_ context.Context, spec validation.RunSpec, _ []float64) ([]float64, error) {
	cfg := macro.DefaultClimateConfig()
	cfg.Initial = spec.Params.Float("t0", 0)
	cfg.Alpha = spec.Params.Float("ode_alpha", cfg.Alpha)
	cfg.Beta = spec.Params.Float("ode_beta", cfg.Beta)
	cfg.Noise = spec.Params.Float("ode_noise", cfg.Noise)
	return macro.RunClimate(cfg, spec.Forcing, spec.Horizon, spec.Seed)
}
