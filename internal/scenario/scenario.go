// Package scenario adapts the micro and macro simulators of each domain to
// the validation engine.
package scenario

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/validation"
)

const (
	Climate   = "climate"
	DeFi      = "defi"
	Logistics = "logistics"
)

// Options overrides a scenario's default parameters and thresholds.
type Options struct {
	Params     map[string]float64
	Thresholds map[string]float64
}

type constructor func(Options) (validation.Scenario, error)

var registry = map[string]constructor{
	Climate:   func(o Options) (validation.Scenario, error) { return NewClimate(o) },
	DeFi:      func(o Options) (validation.Scenario, error) { return NewDeFi(o) },
	Logistics: func(o Options) (validation.Scenario, error) { return NewLogistics(o) },
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func New(name string, opts Options) (validation.Scenario, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return build(opts)
}

// base applies overrides on top of defaults, rejecting unknown names.
type base struct {
	params     model.ParameterSet
	thresholds validation.Thresholds
}

func newBase(name string, defaults map[string]float64, th validation.Thresholds, opts Options) (base, error) {
	for k := range opts.Params {
		if _, ok := defaults[k]; !ok {
			return base{}, fmt.Errorf("%s: unknown parameter %q", name, k)
		}
	}
	params := model.NewParameterSet(defaults).Merge(model.NewParameterSet(opts.Params))
	th, err := th.Override(opts.Thresholds)
	if err != nil {
		return base{}, fmt.Errorf("%s thresholds: %w", name, err)
	}
	return base{params: params, thresholds: th}, nil
}

// Params returns the scenario's effective default parameters.
func (b base) Params() model.ParameterSet { return b.params }

func (b base) Thresholds() validation.Thresholds { return b.thresholds }

func (b base) Observe(series []float64) []float64 {
	return append([]float64(nil), series...)
}

// Synthetic returns a generated observation series for the named scenario
// and the boundary that splits it two thirds into the record.
func Synthetic(name string, seed int64) (observation.Series, time.Time, error) {
	var s observation.Series
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Climate:
		s = observation.SyntheticClimate(time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), 360, seed)
	case DeFi:
		s = observation.SyntheticDeFi(time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), 180, seed)
	case Logistics:
		s = observation.SyntheticLogistics(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), 400, seed)
	default:
		return observation.Series{}, time.Time{}, fmt.Errorf("unknown scenario %q", name)
	}
	return s, s.Dates[s.Len()*2/3], nil
}

func copyOf(xs []float64) []float64 {
	return append([]float64(nil), xs...)
}
