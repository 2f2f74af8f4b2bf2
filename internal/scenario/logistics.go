package scenario

import (
	"context"
	"fmt"
	"math/rand"

	"scalebridge/internal/calibration"
	"scalebridge/internal/forcing"
	"scalebridge/internal/macro"
	"scalebridge/internal/metrics"
	"scalebridge/internal/micro"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/validation"
)

// BullwhipFlag is the backlog-to-demand variance ratio above which the run
// reports a bullwhip effect.
const BullwhipFlag = 2.0

// LogisticsScenario couples a three-tier supply chain with a delay-difference
// freight price model. The micro observable is the system backlog and the
// macro observable the freight price, both projected onto the 0-100 stress
// index. The backlog drives the price; with price_coupling set, the price
// feeds back into factory capacity.
type LogisticsScenario struct {
	base
}

func logisticsDefaults() map[string]float64 {
	c := micro.DefaultSupplyConfig()
	m := macro.DefaultLogisticsConfig()
	return map[string]float64{
		"retail_capacity":      c.RetailCapacity,
		"wholesale_capacity":   c.WholesaleCapacity,
		"factory_capacity":     c.FactoryCapacity,
		"target_inventory":     c.TargetInventory,
		"panic_threshold":      c.PanicThreshold,
		"panic_multiplier":     c.PanicMultiplier,
		"capacity_sensitivity": c.CapacitySensitivity,
		"baseline_demand":      c.BaselineDemand,
		"demand_sd":            c.DemandSD,
		"shock_lift":           c.ShockLift,
		"shock_sd":             c.ShockSD,
		"price_coupling":       0,
		"delay":                float64(m.Delay),
		"ode_alpha":            m.Alpha,
		"ode_beta":             m.Beta,
		"backlog_weight":       m.BacklogWeight,
		"supply_gain":          m.SupplyGain,
		"baseline_price":       m.BaselinePrice,
		"ode_noise":            m.NoiseSD,
	}
}

func logisticsThresholds() validation.Thresholds {
	th := validation.DefaultThresholds()
	th.MaxMeanShift = 5
	th.MaxVarianceShift = 50
	th.ReplicationTolerance = 25
	th.ForcingOffset = 2
	th.MaxEnsembleSpread = 5
	th.MaxDominance = 0.6
	return th
}

func NewLogistics(opts Options) (*LogisticsScenario, error) {
	b, err := newBase(Logistics, logisticsDefaults(), logisticsThresholds(), opts)
	if err != nil {
		return nil, err
	}
	return &LogisticsScenario{base: b}, nil
}

func (s *LogisticsScenario) Name() string { return Logistics }

func (s *LogisticsScenario) Prepare(_ context.Context, data observation.Dataset) (validation.Setup, error) {
	return validation.Setup{
		Params:   s.params,
		Observed: data.Series.StressIndex().Values,
		Forcing:  forcing.Constant(data.Len(), s.params.Float("baseline_demand", 10)),
	}, nil
}

// FitMacro has no closed form for the delayed recursion; the configured
// coefficients are reported unchanged.
func (s *LogisticsScenario) FitMacro(setup validation.Setup, _ int) (model.ParameterSet, bool) {
	d := macro.DefaultLogisticsConfig()
	return model.NewParameterSet(map[string]float64{
		"ode_alpha": setup.Params.Float("ode_alpha", d.Alpha),
		"ode_beta":  setup.Params.Float("ode_beta", d.Beta),
	}), false
}

func (s *LogisticsScenario) CalibrationGrid() calibration.Grid {
	return calibration.Grid{
		{Name: "delay", Values: []float64{2, 5, 10, 20}},
		{Name: "panic_multiplier", Values: []float64{1.0, 1.5, 2.0}},
	}
}

func (s *LogisticsScenario) PerturbKeys() []string {
	return []string{"ode_alpha", "ode_beta", "panic_multiplier"}
}

// Reduce removes panic ordering and both directions of price coupling.
func (s *LogisticsScenario) Reduce(p model.ParameterSet) model.ParameterSet {
	return p.With("backlog_weight", 0).
		With("ode_alpha", 0).
		With("panic_multiplier", 1).
		With("price_coupling", 0)
}

func (s *LogisticsScenario) Observe(series []float64) []float64 {
	return metrics.MinMaxScale(series, 100)
}

func (s *LogisticsScenario) SupplyConfig(p model.ParameterSet) micro.SupplyConfig {
	cfg := micro.DefaultSupplyConfig()
	cfg.RetailCapacity = p.Float("retail_capacity", cfg.RetailCapacity)
	cfg.WholesaleCapacity = p.Float("wholesale_capacity", cfg.WholesaleCapacity)
	cfg.FactoryCapacity = p.Float("factory_capacity", cfg.FactoryCapacity)
	cfg.TargetInventory = p.Float("target_inventory", cfg.TargetInventory)
	cfg.PanicThreshold = p.Float("panic_threshold", cfg.PanicThreshold)
	cfg.PanicMultiplier = p.Float("panic_multiplier", cfg.PanicMultiplier)
	cfg.CapacitySensitivity = p.Float("capacity_sensitivity", cfg.CapacitySensitivity)
	cfg.BaselineDemand = p.Float("baseline_demand", cfg.BaselineDemand)
	cfg.DemandSD = p.Float("demand_sd", cfg.DemandSD)
	cfg.ShockLift = p.Float("shock_lift", cfg.ShockLift)
	cfg.ShockSD = p.Float("shock_sd", cfg.ShockSD)
	return cfg
}

func (s *LogisticsScenario) MacroConfig(p model.ParameterSet) macro.LogisticsConfig {
	cfg := macro.DefaultLogisticsConfig()
	cfg.Delay = p.Int("delay", cfg.Delay)
	cfg.Alpha = p.Float("ode_alpha", cfg.Alpha)
	cfg.Beta = p.Float("ode_beta", cfg.Beta)
	cfg.BacklogWeight = p.Float("backlog_weight", cfg.BacklogWeight)
	cfg.SupplyGain = p.Float("supply_gain", cfg.SupplyGain)
	cfg.BaselinePrice = p.Float("baseline_price", cfg.BaselinePrice)
	cfg.InitialPrice = cfg.BaselinePrice
	cfg.NoiseSD = p.Float("ode_noise", cfg.NoiseSD)
	return cfg
}

// RunMicro runs the supply chain. With a non-zero price_coupling a pilot
// pass is priced by the freight model and the chain is rerun with that price
// as its capacity signal, under the same seed.
func (s *LogisticsScenario) RunMicro(_ context.Context, spec validation.RunSpec) (validation.MicroTrajectory, error) {
	cfg := s.SupplyConfig(spec.Params)
	in := micro.SupplyInputs{Demand: spec.Forcing}
	res, err := micro.RunSupply(cfg, in, spec.Horizon, spec.Seed)
	if err != nil {
		return validation.MicroTrajectory{}, err
	}
	if k := spec.Params.Float("price_coupling", 0); k != 0 {
		price, err := macro.RunLogistics(s.MacroConfig(spec.Params), spec.Forcing, res.Backlog, spec.Horizon, spec.Seed)
		if err != nil {
			return validation.MicroTrajectory{}, fmt.Errorf("price pilot: %w", err)
		}
		in.CapacitySignal = capacitySignal(price, cfg.SignalBaseline, k)
		if res, err = micro.RunSupply(cfg, in, spec.Horizon, spec.Seed); err != nil {
			return validation.MicroTrajectory{}, err
		}
	}

	ratio := metrics.BullwhipRatio(baselineDemand(cfg, spec.Horizon, spec.Seed), res.Backlog).Or(0)
	detected := 0.0
	if ratio > BullwhipFlag {
		detected = 1
	}
	peak, _ := metrics.CascadeSummary(res.Backlog)
	return validation.MicroTrajectory{
		Aggregate: metrics.MinMaxScale(res.Backlog, 100),
		Bridge:    res.Backlog,
		Panel: metrics.Panel{
			Series:    res.Inventory,
			Neighbors: [][]int{micro.Retail: {micro.Wholesale}, micro.Wholesale: {micro.Retail, micro.Factory}, micro.Factory: {micro.Wholesale}},
		},
		Extras: map[string]float64{
			"bullwhip_ratio":      ratio,
			"bullwhip_detected":   detected,
			"peak_backlog":        peak,
			"mean_network_stress": metrics.Mean(res.Stress).Or(0),
		},
	}, nil
}

// capacitySignal scales the price deviation from baseline by k.
func capacitySignal(price []float64, baseline, k float64) []float64 {
	out := make([]float64, len(price))
	for i, p := range price {
		out[i] = baseline + k*(p-baseline)
	}
	return out
}

func (s *LogisticsScenario) RunMacro(_ context.Context, spec validation.RunSpec, bridge []float64) ([]float64, error) {
	return macro.RunLogistics(s.MacroConfig(spec.Params), spec.Forcing, bridge, spec.Horizon, spec.Seed)
}

// ScoreCandidate scores the coupled chain: the candidate's backlog is priced
// by the freight model and the price shape is compared with the training
// window after min-max normalisation of both sides.
func (s *LogisticsScenario) ScoreCandidate(ctx context.Context, spec validation.RunSpec, train []float64) (metrics.Value, error) {
	traj, err := s.RunMicro(ctx, spec)
	if err != nil {
		return metrics.Undefined(), err
	}
	price, err := s.RunMacro(ctx, spec, traj.Bridge)
	if err != nil {
		return metrics.Undefined(), err
	}
	return metrics.NormalizedRMSE(price, train), nil
}

// baselineDemand draws unshocked consumer demand, the reference for the
// bullwhip ratio.
func baselineDemand(cfg micro.SupplyConfig, horizon int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, horizon)
	for t := range out {
		out[t] = cfg.BaselineDemand + cfg.DemandSD*rng.NormFloat64()
	}
	return out
}
