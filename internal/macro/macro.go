// Package macro implements the aggregate recursions that mirror each micro
// simulator: first-order relaxation for climate, a bridge-driven price
// recursion for defi and a delay-difference freight price model for
// logistics.
package macro

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"scalebridge/internal/forcing"
)

const ClimateFloor = -273.15

type ClimateConfig struct {
	Initial float64
	Alpha   float64
	Beta    float64
	Noise   float64
	Floor   float64
}

func DefaultClimateConfig() ClimateConfig {
	return ClimateConfig{Alpha: 0.05, Beta: 0.02, Noise: 0.02, Floor: ClimateFloor}
}

func (c ClimateConfig) Validate() error {
	return validateLinear(c.Alpha, c.Beta, c.Noise)
}

// RunClimate integrates x += alpha*(F - beta*x) + U(-noise, noise).
func RunClimate(cfg ClimateConfig, drive []float64, horizon int, seed int64) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := checkedForcing(drive, horizon)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	x := cfg.Initial
	out := make([]float64, horizon)
	for t := range out {
		x += cfg.Alpha*(f[t]-cfg.Beta*x) + uniform(rng, cfg.Noise)
		x = math.Max(cfg.Floor, x)
		out[t] = x
	}
	return out, nil
}

type DeFiConfig struct {
	InitialPrice float64
	Alpha        float64
	Beta         float64
	Lambda       float64
	Noise        float64
	Floor        float64
}

func DefaultDeFiConfig() DeFiConfig {
	return DeFiConfig{InitialPrice: 2000, Alpha: 0.05, Beta: 0.02, Lambda: 0.1, Noise: 0.2, Floor: 0.1}
}

func (c DeFiConfig) Validate() error {
	if c.Floor <= 0 {
		return errors.New("defi price floor must be > 0")
	}
	return validateLinear(c.Alpha, c.Beta, c.Noise)
}

// RunDeFi integrates p += alpha*(F - beta*p) - lambda*bridge + U(-noise, noise)
// where bridge is the micro liquidation volume.
func RunDeFi(cfg DeFiConfig, drive, bridge []float64, horizon int, seed int64) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := checkedForcing(drive, horizon)
	if err != nil {
		return nil, err
	}
	b, err := checkedBridge(bridge, horizon)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	p := cfg.InitialPrice
	out := make([]float64, horizon)
	for t := range out {
		p += cfg.Alpha*(f[t]-cfg.Beta*p) - cfg.Lambda*b[t] + uniform(rng, cfg.Noise)
		p = math.Max(cfg.Floor, p)
		out[t] = p
	}
	return out, nil
}

type LogisticsConfig struct {
	InitialPrice   float64
	BaselinePrice  float64
	BaselineSupply float64
	Alpha          float64
	Beta           float64
	// Delay is the number of steps between a supply decision and its arrival.
	Delay         int
	BacklogWeight float64
	SupplyGain    float64
	NoiseSD       float64
	Floor         float64
}

func DefaultLogisticsConfig() LogisticsConfig {
	return LogisticsConfig{
		InitialPrice:   10,
		BaselinePrice:  10,
		BaselineSupply: 10,
		Alpha:          0.5,
		Beta:           0.1,
		Delay:          5,
		BacklogWeight:  0.1,
		SupplyGain:     0.5,
		NoiseSD:        0.5,
		Floor:          1,
	}
}

func (c LogisticsConfig) Validate() error {
	if c.Delay < 1 {
		return fmt.Errorf("logistics delay must be >= 1, got %d", c.Delay)
	}
	if c.NoiseSD < 0 {
		return errors.New("logistics noise must be >= 0")
	}
	return validateLinear(c.Alpha, c.Beta, 0)
}

// RunLogistics integrates the delay-difference freight price model. The
// supply arriving at step t was decided at step t-Delay; decisions live in a
// ring buffer of Delay+1 slots, written at t mod (Delay+1) and read at
// (t+1) mod (Delay+1).
func RunLogistics(cfg LogisticsConfig, drive, bridge []float64, horizon int, seed int64) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := checkedForcing(drive, horizon)
	if err != nil {
		return nil, err
	}
	b, err := checkedBridge(bridge, horizon)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))

	ring := make([]float64, cfg.Delay+1)
	for i := range ring {
		ring[i] = cfg.BaselineSupply
	}
	slots := len(ring)

	p := cfg.InitialPrice
	out := make([]float64, horizon)
	for t := range out {
		demand := f[t] + cfg.BacklogWeight*b[t]
		arrived := ring[(t+1)%slots]
		dp := cfg.Alpha*(demand-arrived) - cfg.Beta*(p-cfg.BaselinePrice)
		p += dp + cfg.NoiseSD*rng.NormFloat64()
		p = math.Max(cfg.Floor, p)
		ring[t%slots] = cfg.BaselineSupply + cfg.SupplyGain*(p-cfg.BaselinePrice)
		out[t] = p
	}
	return out, nil
}

func validateLinear(alpha, beta, noise float64) error {
	for name, v := range map[string]float64{"alpha": alpha, "beta": beta, "noise": noise} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if noise < 0 {
		return errors.New("noise must be >= 0")
	}
	return nil
}

func checkedForcing(drive []float64, horizon int) ([]float64, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("horizon must be >= 0, got %d", horizon)
	}
	return forcing.Passthrough(drive, horizon)
}

// checkedBridge treats a nil bridge as all zeros.
func checkedBridge(bridge []float64, horizon int) ([]float64, error) {
	if bridge == nil {
		return make([]float64, horizon), nil
	}
	if len(bridge) < horizon {
		return nil, fmt.Errorf("bridge series shorter than horizon: len=%d horizon=%d", len(bridge), horizon)
	}
	return bridge, nil
}

func uniform(rng *rand.Rand, amp float64) float64 {
	return (2*rng.Float64() - 1) * amp
}
