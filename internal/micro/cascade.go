package micro

import (
	"errors"
	"fmt"
	"math/rand"

	"scalebridge/internal/forcing"
)

type CascadeConfig struct {
	Agents       int
	InitialPrice float64

	// Debts are drawn uniformly in [DebtLow, DebtHigh] * DebtReference.
	// A zero DebtReference means InitialPrice.
	DebtLow       float64
	DebtHigh      float64
	DebtReference float64
	Collateral    float64

	LiquidationThreshold float64
	Alpha                float64
	Beta                 float64
	Impact               float64
	ImpactScale          float64
	Noise                float64
	PriceFloor           float64
}

func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Agents:               100,
		InitialPrice:         2000,
		DebtLow:              0.8,
		DebtHigh:             0.95,
		Collateral:           1,
		LiquidationThreshold: 1.05,
		Alpha:                0.05,
		Beta:                 0.02,
		Impact:               0.1,
		ImpactScale:          10,
		Noise:                1,
		PriceFloor:           0.1,
	}
}

func (c CascadeConfig) Validate() error {
	if c.Agents < 1 {
		return fmt.Errorf("cascade agents must be >= 1, got %d", c.Agents)
	}
	if c.InitialPrice <= 0 {
		return errors.New("cascade initial price must be > 0")
	}
	if c.DebtLow <= 0 || c.DebtHigh < c.DebtLow {
		return fmt.Errorf("cascade debt band invalid: [%f, %f]", c.DebtLow, c.DebtHigh)
	}
	if c.DebtReference < 0 {
		return errors.New("cascade debt reference must be >= 0")
	}
	if c.Collateral <= 0 {
		return errors.New("cascade collateral must be > 0")
	}
	if c.Noise < 0 {
		return errors.New("cascade noise must be >= 0")
	}
	if c.PriceFloor <= 0 {
		return errors.New("cascade price floor must be > 0")
	}
	return nil
}

type Agent struct {
	Collateral float64
	Debt       float64
	Active     bool
}

type CascadeResult struct {
	Price        []float64
	Liquidations []float64
	Forcing      []float64
	// Exposure[i][t] is agent i's collateral value at step t, zero once
	// liquidated.
	Exposure [][]float64
	Agents   []Agent
	// FirstLiquidation is the first step with a non-zero liquidation volume,
	// or the horizon when no agent was liquidated.
	FirstLiquidation int
}

// RunCascade liquidates agents against the previous-step price, then lets
// the same step's selling pressure feed the price recursion.
func RunCascade(cfg CascadeConfig, drive []float64, horizon int, seed int64) (CascadeResult, error) {
	if err := cfg.Validate(); err != nil {
		return CascadeResult{}, err
	}
	if horizon < 0 {
		return CascadeResult{}, fmt.Errorf("horizon must be >= 0, got %d", horizon)
	}
	f, err := forcing.Passthrough(drive, horizon)
	if err != nil {
		return CascadeResult{}, err
	}

	rng := rand.New(rand.NewSource(seed))
	ref := cfg.DebtReference
	if ref == 0 {
		ref = cfg.InitialPrice
	}
	agents := make([]Agent, cfg.Agents)
	for i := range agents {
		agents[i] = Agent{
			Collateral: cfg.Collateral,
			Debt:       uniformRange(rng, cfg.DebtLow, cfg.DebtHigh) * ref,
			Active:     true,
		}
	}

	result := CascadeResult{
		Price:            make([]float64, 0, horizon),
		Liquidations:     make([]float64, 0, horizon),
		Forcing:          f,
		Exposure:         make([][]float64, cfg.Agents),
		FirstLiquidation: horizon,
	}
	for i := range result.Exposure {
		result.Exposure[i] = make([]float64, horizon)
	}

	price := cfg.InitialPrice
	for t := 0; t < horizon; t++ {
		pressure := 0.0
		for i := range agents {
			a := &agents[i]
			if !a.Active {
				continue
			}
			if a.Collateral*price/a.Debt < cfg.LiquidationThreshold {
				a.Active = false
				pressure += a.Collateral
			}
		}
		if pressure > 0 && result.FirstLiquidation == horizon {
			result.FirstLiquidation = t
		}

		price += cfg.Alpha*(f[t]-cfg.Beta*price) - cfg.Impact*pressure*cfg.ImpactScale + uniform(rng, cfg.Noise)
		if price < cfg.PriceFloor {
			price = cfg.PriceFloor
		}

		for i, a := range agents {
			if a.Active {
				result.Exposure[i][t] = a.Collateral * price
			}
		}
		result.Price = append(result.Price, price)
		result.Liquidations = append(result.Liquidations, pressure)
	}
	result.Agents = agents
	return result, nil
}
