package scenario

import (
	"context"

	"scalebridge/internal/calibration"
	"scalebridge/internal/forcing"
	"scalebridge/internal/macro"
	"scalebridge/internal/metrics"
	"scalebridge/internal/micro"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/validation"
)

// TailEventVolume is the total liquidated collateral above which a run is
// flagged as a tail event.
const TailEventVolume = 500

// DeFiScenario couples a population of leveraged positions with a price
// recursion that absorbs their liquidation volume.
type DeFiScenario struct {
	base
}

func defiDefaults() map[string]float64 {
	c := micro.DefaultCascadeConfig()
	m := macro.DefaultDeFiConfig()
	return map[string]float64{
		"agents":                float64(c.Agents),
		"initial_price":         c.InitialPrice,
		"debt_low":              c.DebtLow,
		"debt_high":             c.DebtHigh,
		"liquidation_threshold": c.LiquidationThreshold,
		"alpha":                 0.1,
		"beta":                  1,
		"impact":                c.Impact,
		"impact_scale":          c.ImpactScale,
		"noise":                 c.Noise,
		"price_floor":           c.PriceFloor,
		"ode_alpha":             0.1,
		"ode_beta":              1,
		"ode_lambda":            m.Lambda,
		"ode_noise":             m.Noise,
	}
}

func defiThresholds() validation.Thresholds {
	th := validation.DefaultThresholds()
	th.MaxMeanShift = 50
	th.MaxVarianceShift = 5000
	th.ReplicationTolerance = 5000
	th.ForcingOffset = 20
	th.MaxEnsembleSpread = 50
	return th
}

func NewDeFi(opts Options) (*DeFiScenario, error) {
	b, err := newBase(DeFi, defiDefaults(), defiThresholds(), opts)
	if err != nil {
		return nil, err
	}
	return &DeFiScenario{base: b}, nil
}

func (s *DeFiScenario) Name() string { return DeFi }

// Prepare drives both scales with the observed price itself.
func (s *DeFiScenario) Prepare(_ context.Context, data observation.Dataset) (validation.Setup, error) {
	drive, err := forcing.Passthrough(data.Series.Values, data.Len())
	if err != nil {
		return validation.Setup{}, err
	}
	return validation.Setup{
		Params:   s.params.With("initial_price", data.Series.Values[0]),
		Observed: copyOf(data.Series.Values),
		Forcing:  drive,
	}, nil
}

// FitMacro keeps the configured coefficients when the training prices
// cannot separate forcing from state, which is always the case for a pure
// passthrough driver.
func (s *DeFiScenario) FitMacro(setup validation.Setup, split int) (model.ParameterSet, bool) {
	fit := calibration.FitLinearRecursion(setup.Observed[:split], setup.Forcing[:split])
	alpha, beta := fit.Alpha, fit.Beta
	if !fit.OK {
		alpha = setup.Params.Float("ode_alpha", alpha)
		beta = setup.Params.Float("ode_beta", beta)
	}
	return model.NewParameterSet(map[string]float64{"ode_alpha": alpha, "ode_beta": beta}), fit.OK
}

func (s *DeFiScenario) CalibrationGrid() calibration.Grid {
	return calibration.Grid{
		{Name: "impact", Values: []float64{0.01, 0.05, 0.1, 0.2}},
		{Name: "agents", Values: []float64{100, 500, 1000}},
	}
}

func (s *DeFiScenario) PerturbKeys() []string {
	return []string{"alpha", "beta", "impact"}
}

func (s *DeFiScenario) Reduce(p model.ParameterSet) model.ParameterSet {
	return p.With("impact", 0).With("alpha", 0)
}

func (s *DeFiScenario) CascadeConfig(p model.ParameterSet) micro.CascadeConfig {
	cfg := micro.DefaultCascadeConfig()
	cfg.Agents = p.Int("agents", cfg.Agents)
	cfg.InitialPrice = p.Float("initial_price", cfg.InitialPrice)
	cfg.DebtLow = p.Float("debt_low", cfg.DebtLow)
	cfg.DebtHigh = p.Float("debt_high", cfg.DebtHigh)
	cfg.LiquidationThreshold = p.Float("liquidation_threshold", cfg.LiquidationThreshold)
	cfg.Alpha = p.Float("alpha", cfg.Alpha)
	cfg.Beta = p.Float("beta", cfg.Beta)
	cfg.Impact = p.Float("impact", cfg.Impact)
	cfg.ImpactScale = p.Float("impact_scale", cfg.ImpactScale)
	cfg.Noise = p.Float("noise", cfg.Noise)
	cfg.PriceFloor = p.Float("price_floor", cfg.PriceFloor)
	return cfg
}

func (s *DeFiScenario) RunMicro(_ context.Context, spec validation.RunSpec) (validation.MicroTrajectory, error) {
	res, err := micro.RunCascade(s.CascadeConfig(spec.Params), spec.Forcing, spec.Horizon, spec.Seed)
	if err != nil {
		return validation.MicroTrajectory{}, err
	}
	peak, total := metrics.CascadeSummary(res.Liquidations)
	tail := 0.0
	if total > TailEventVolume {
		tail = 1
	}
	return validation.MicroTrajectory{
		Aggregate: res.Price,
		Bridge:    res.Liquidations,
		Panel:     metrics.Panel{Series: res.Exposure},
		Extras: map[string]float64{
			"max_liquidation_peak":     peak,
			"total_liquidation_volume": total,
			"tail_event":               tail,
			"first_liquidation":        float64(res.FirstLiquidation),
		},
	}, nil
}

func (s *DeFiScenario) RunMacro(_ context.Context, spec validation.RunSpec, bridge []float64) ([]float64, error) {
	cfg := macro.DefaultDeFiConfig()
	cfg.InitialPrice = spec.Params.Float("initial_price", cfg.InitialPrice)
	cfg.Alpha = spec.Params.Float("ode_alpha", cfg.Alpha)
	cfg.Beta = spec.Params.Float("ode_beta", cfg.Beta)
	cfg.Lambda = spec.Params.Float("ode_lambda", cfg.Lambda)
	cfg.Noise = spec.Params.Float("ode_noise", cfg.Noise)
	cfg.Floor = spec.Params.Float("price_floor", cfg.Floor)
	return macro.RunDeFi(cfg, spec.Forcing, bridge, spec.Horizon, spec.Seed)
}
