package storage

import (
	"context"
	"testing"
	"time"

	"scalebridge/internal/model"
)

func sampleResult(id, scenario string, created time.Time, pass bool) model.ValidationResult {
	return model.ValidationResult{
		RunID:     id,
		Scenario:  scenario,
		CreatedAt: created,
		Params:    model.NewParameterSet(map[string]float64{"diffusion": 0.2}),
		Criteria: map[string]model.Criterion{
			model.CriterionConvergence: {Pass: pass, Metrics: map[string]float64{"rmse_micro": 0.1}},
			model.IndicatorEmergence:   {Pass: false, Metrics: map[string]float64{}, Undefined: []string{"rmse_reduced"}},
		},
		Extras:      map[string]float64{"bullwhip_ratio": 2.5},
		OverallPass: false,
	}
}

func TestMemoryStoreResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := sampleResult("run-1", "climate", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true)
	if err := store.SaveResult(ctx, input); err != nil {
		t.Fatalf("save result: %v", err)
	}
	input.Extras["bullwhip_ratio"] = 99

	output, ok, err := store.GetResult(ctx, "run-1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted result")
	}
	if output.Extras["bullwhip_ratio"] != 2.5 {
		t.Fatalf("stored result shares state with caller: %v", output.Extras)
	}
	if output.SchemaVersion != CurrentSchemaVersion || output.CodecVersion != CurrentCodecVersion {
		t.Fatalf("expected stamped versions, got %+v", output.VersionedRecord)
	}
	if v, _ := output.Params.Get("diffusion"); v != 0.2 {
		t.Fatalf("unexpected params %v", output.Params.Map())
	}
	if c := output.Criteria[model.IndicatorEmergence]; len(c.Undefined) != 1 {
		t.Fatalf("unexpected criterion %+v", c)
	}

	if _, ok, err := store.GetResult(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing result, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListResultsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, sc := range []string{"climate", "defi", "climate"} {
		if err := store.SaveResult(ctx, sampleResult(string(rune('a'+i)), sc, base.Add(time.Duration(i)*time.Hour), true)); err != nil {
			t.Fatalf("save result: %v", err)
		}
	}

	all, err := store.ListResults(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "c" || all[2].RunID != "a" {
		t.Fatalf("unexpected listing %+v", all)
	}
	climate, err := store.ListResults(ctx, "climate")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(climate) != 2 {
		t.Fatalf("expected two climate runs, got %d", len(climate))
	}
	if len(all[0].Failed) != 1 || all[0].Failed[0] != model.IndicatorEmergence {
		t.Fatalf("unexpected failed list %v", all[0].Failed)
	}
}

func TestMemoryStoreTrajectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.Trajectory{ID: "sim-1", Scenario: "defi", Scale: "micro", Seed: 42, Values: []float64{2000, 1990}, Bridge: []float64{0, 3}}
	if err := store.SaveTrajectory(ctx, input); err != nil {
		t.Fatalf("save trajectory: %v", err)
	}
	output, ok, err := store.GetTrajectory(ctx, "sim-1")
	if err != nil {
		t.Fatalf("get trajectory: %v", err)
	}
	if !ok || output.Seed != 42 || len(output.Values) != 2 || output.Bridge[1] != 3 {
		t.Fatalf("unexpected trajectory %+v", output)
	}
	if err := store.SaveTrajectory(ctx, model.Trajectory{}); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveResult(context.Background(), sampleResult("x", "climate", time.Now(), true)); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}
