package scenario

import (
	"context"
	"math"
	"slices"
	"testing"

	"scalebridge/internal/forcing"
	"scalebridge/internal/logging"
	"scalebridge/internal/metrics"
	"scalebridge/internal/micro"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/validation"
)

func syntheticDataset(t *testing.T, name string) observation.Dataset {
	t.Helper()
	s, boundary, err := Synthetic(name, 42)
	if err != nil {
		t.Fatalf("synthetic %s: %v", name, err)
	}
	ds, err := observation.NewDataset(s, boundary, 0)
	if err != nil {
		t.Fatalf("dataset %s: %v", name, err)
	}
	return ds
}

func evaluate(t *testing.T, name string) model.ValidationResult {
	t.Helper()
	sc, err := New(name, Options{})
	if err != nil {
		t.Fatalf("new %s: %v", name, err)
	}
	engine := validation.NewEngine(logging.Discard())
	engine.Calibrator.Workers = 4
	res, err := engine.Evaluate(context.Background(), sc, syntheticDataset(t, name))
	if err != nil {
		t.Fatalf("evaluate %s: %v", name, err)
	}
	if len(res.Criteria) != len(model.CriterionOrder) {
		t.Fatalf("%s: expected every criterion reported, got %d", name, len(res.Criteria))
	}
	overall := true
	for _, c := range res.Criteria {
		overall = overall && c.Pass
	}
	if res.OverallPass != overall {
		t.Fatalf("%s: overall pass %v does not match criteria", name, res.OverallPass)
	}
	return res
}

func TestNewRejectsUnknownNamesAndOverrides(t *testing.T) {
	if _, err := New("weather", Options{}); err == nil {
		t.Fatal("expected unknown scenario error")
	}
	if _, err := New(Climate, Options{Params: map[string]float64{"warp": 1}}); err == nil {
		t.Fatal("expected unknown parameter error")
	}
	if _, err := New(DeFi, Options{Thresholds: map[string]float64{"persistence_window": 1}}); err == nil {
		t.Fatal("expected invalid threshold error")
	}
	sc, err := NewLogistics(Options{Params: map[string]float64{"delay": 3}, Thresholds: map[string]float64{"max_dominance": 0.7}})
	if err != nil {
		t.Fatalf("new logistics: %v", err)
	}
	if sc.Params().Int("delay", 0) != 3 || sc.Thresholds().MaxDominance != 0.7 {
		t.Fatalf("overrides not applied: delay=%v dominance=%v", sc.Params().Int("delay", 0), sc.Thresholds().MaxDominance)
	}
	if !slices.Equal(Names(), []string{Climate, DeFi, Logistics}) {
		t.Fatalf("unexpected names %v", Names())
	}
}

func TestClimatePrepareBuildsAnomalyDriver(t *testing.T) {
	sc, err := NewClimate(Options{})
	if err != nil {
		t.Fatalf("new climate: %v", err)
	}
	ds := syntheticDataset(t, Climate)
	setup, err := sc.Prepare(context.Background(), ds)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	sum := 0.0
	for _, v := range setup.Observed {
		sum += v
	}
	if math.Abs(sum/float64(len(setup.Observed))) > 1e-9 {
		t.Fatalf("expected zero-mean anomalies, mean=%f", sum/float64(len(setup.Observed)))
	}
	if len(setup.Forcing) != ds.Len() || len(setup.Assimilation) != ds.Len() {
		t.Fatalf("driver lengths forcing=%d assimilation=%d want %d", len(setup.Forcing), len(setup.Assimilation), ds.Len())
	}
	if !math.IsNaN(setup.Assimilation[0]) || setup.Assimilation[5] != setup.Observed[4] {
		t.Fatal("assimilation must be the lagged anomaly with a missing first value")
	}
	if t0, _ := setup.Params.Get("t0"); t0 != setup.Observed[0] {
		t.Fatalf("expected t0 from first anomaly, got %f", t0)
	}
}

func TestClimateEndToEnd(t *testing.T) {
	res := evaluate(t, Climate)
	if len(res.Calibration.Candidates) != 45 {
		t.Fatalf("expected 45 candidates, got %d", len(res.Calibration.Candidates))
	}
	scale, _ := res.Calibration.Micro.Get("forcing_scale")
	if !slices.Contains([]float64{0.01, 0.03, 0.05, 0.1, 0.2}, scale) {
		t.Fatalf("calibrated forcing_scale %f outside grid", scale)
	}
	if _, ok := res.Criteria[model.CriterionConvergence].Metrics["rmse_micro"]; !ok {
		t.Fatalf("expected rmse_micro to be defined: %+v", res.Criteria[model.CriterionConvergence])
	}
	if units := res.Criteria[model.IndicatorNonLocality].Metrics["units"]; units != 100 {
		t.Fatalf("expected 100 grid cells in panel, got %f", units)
	}

	again := evaluate(t, Climate)
	for _, name := range model.CriterionOrder {
		if res.Criteria[name].Pass != again.Criteria[name].Pass {
			t.Fatalf("%s differs between identical evaluations", name)
		}
	}
}

func TestDeFiEndToEnd(t *testing.T) {
	res := evaluate(t, DeFi)
	if len(res.Calibration.Candidates) != 12 {
		t.Fatalf("expected 12 candidates, got %d", len(res.Calibration.Candidates))
	}
	if res.Calibration.MacroFit {
		t.Fatal("passthrough forcing must not produce a closed-form macro fit")
	}
	if beta, _ := res.Calibration.Macro.Get("ode_beta"); beta != 1 {
		t.Fatalf("expected configured ode_beta, got %f", beta)
	}
	for _, key := range []string{"max_liquidation_peak", "total_liquidation_volume", "tail_event"} {
		if _, ok := res.Extras[key]; !ok {
			t.Fatalf("missing extra %s in %v", key, res.Extras)
		}
	}
	if flag := res.Extras["tail_event"]; (flag == 1) != (res.Extras["total_liquidation_volume"] > TailEventVolume) {
		t.Fatalf("tail flag %f inconsistent with volume %f", flag, res.Extras["total_liquidation_volume"])
	}
}

func TestLogisticsEndToEnd(t *testing.T) {
	res := evaluate(t, Logistics)
	if len(res.Calibration.Candidates) != 12 {
		t.Fatalf("expected 12 candidates, got %d", len(res.Calibration.Candidates))
	}
	delay, _ := res.Calibration.Micro.Get("delay")
	if !slices.Contains([]float64{2, 5, 10, 20}, delay) {
		t.Fatalf("calibrated delay %f outside grid", delay)
	}
	if units := res.Criteria[model.IndicatorNonLocality].Metrics["units"]; units != 3 {
		t.Fatalf("expected three supply nodes, got %f", units)
	}
	ratio, ok := res.Extras["bullwhip_ratio"]
	if !ok || ratio < 0 {
		t.Fatalf("unexpected bullwhip ratio %v", res.Extras)
	}
	if (res.Extras["bullwhip_detected"] == 1) != (ratio > BullwhipFlag) {
		t.Fatalf("bullwhip flag inconsistent with ratio %f", ratio)
	}
}

func TestLogisticsReductionDecouplesBacklog(t *testing.T) {
	sc, err := NewLogistics(Options{})
	if err != nil {
		t.Fatalf("new logistics: %v", err)
	}
	spec := validation.RunSpec{
		Params:  sc.Reduce(sc.Params()),
		Forcing: forcing.Constant(80, 10),
		Horizon: 80,
		Seed:    3,
	}
	calm, err := sc.RunMacro(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("run macro: %v", err)
	}
	stressed, err := sc.RunMacro(context.Background(), spec, forcing.Constant(80, 500))
	if err != nil {
		t.Fatalf("run macro: %v", err)
	}
	if !slices.Equal(calm, stressed) {
		t.Fatal("reduced model must ignore the backlog bridge")
	}

	scaled := sc.Observe([]float64{2, 4, 6})
	if scaled[0] != 0 || scaled[2] != 100 {
		t.Fatalf("expected 0-100 projection, got %v", scaled)
	}
}

func TestLogisticsMicroAndMacroAreDistinctScales(t *testing.T) {
	sc, err := NewLogistics(Options{})
	if err != nil {
		t.Fatalf("new logistics: %v", err)
	}
	spec := validation.RunSpec{
		Params:  sc.Params(),
		Forcing: forcing.Constant(120, 10),
		Horizon: 120,
		Seed:    2,
	}
	traj, err := sc.RunMicro(context.Background(), spec)
	if err != nil {
		t.Fatalf("run micro: %v", err)
	}
	price, err := sc.RunMacro(context.Background(), spec, traj.Bridge)
	if err != nil {
		t.Fatalf("run macro: %v", err)
	}
	if slices.Equal(traj.Aggregate, price) {
		t.Fatal("micro aggregate must come from the supply chain, not the price model")
	}

	supply, err := micro.RunSupply(sc.SupplyConfig(spec.Params), micro.SupplyInputs{Demand: spec.Forcing}, spec.Horizon, spec.Seed)
	if err != nil {
		t.Fatalf("run supply: %v", err)
	}
	if !slices.Equal(traj.Bridge, supply.Backlog) {
		t.Fatal("bridge must be the uncoupled supply backlog")
	}
	if want := metrics.MinMaxScale(supply.Backlog, 100); !slices.Equal(traj.Aggregate, want) {
		t.Fatal("micro aggregate must be the backlog on the 0-100 scale")
	}
	for i, v := range sc.Observe(traj.Aggregate) {
		if math.Abs(v-traj.Aggregate[i]) > 1e-9 {
			t.Fatalf("projecting the micro aggregate again changed step %d: %f -> %f", i, traj.Aggregate[i], v)
		}
	}
}

func TestLogisticsPriceCouplingFeedsCapacity(t *testing.T) {
	sc, err := NewLogistics(Options{Params: map[string]float64{"price_coupling": 1, "backlog_weight": 5}})
	if err != nil {
		t.Fatalf("new logistics: %v", err)
	}
	spec := validation.RunSpec{
		Params:  sc.Params(),
		Forcing: forcing.Constant(120, 10),
		Horizon: 120,
		Seed:    2,
	}
	coupled, err := sc.RunMicro(context.Background(), spec)
	if err != nil {
		t.Fatalf("run coupled micro: %v", err)
	}
	spec.Params = spec.Params.With("price_coupling", 0)
	plain, err := sc.RunMicro(context.Background(), spec)
	if err != nil {
		t.Fatalf("run uncoupled micro: %v", err)
	}
	factory := micro.Factory
	if slices.Equal(coupled.Panel.Series[factory], plain.Panel.Series[factory]) {
		t.Fatal("price feedback must change the factory inventory")
	}

	reduced := sc.Reduce(sc.Params())
	if reduced.Float("panic_multiplier", 0) != 1 || reduced.Float("price_coupling", 1) != 0 {
		t.Fatalf("reduction must remove panic ordering and price coupling: %v", reduced.Map())
	}
}
