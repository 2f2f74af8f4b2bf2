package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestParameterSetIsImmutable(t *testing.T) {
	src := map[string]float64{"alpha": 0.1, "delay": 5.9}
	p := NewParameterSet(src)
	src["alpha"] = 99
	if v, _ := p.Get("alpha"); v != 0.1 {
		t.Fatalf("set must copy its input, got alpha=%f", v)
	}

	q := p.With("alpha", 0.2)
	if v, _ := p.Get("alpha"); v != 0.1 {
		t.Fatalf("With mutated the receiver: alpha=%f", v)
	}
	if v, _ := q.Get("alpha"); v != 0.2 {
		t.Fatalf("With did not apply: alpha=%f", v)
	}

	m := q.Map()
	m["beta"] = 1
	if _, ok := q.Get("beta"); ok {
		t.Fatal("Map must return a copy")
	}

	merged := p.Merge(NewParameterSet(map[string]float64{"beta": 2, "alpha": 0.3}))
	if merged.Len() != 3 || merged.Float("alpha", 0) != 0.3 || p.Len() != 2 {
		t.Fatalf("unexpected merge result %v (receiver %v)", merged.Map(), p.Map())
	}
	if got := merged.Names(); !reflect.DeepEqual(got, []string{"alpha", "beta", "delay"}) {
		t.Fatalf("expected sorted names, got %v", got)
	}
}

func TestParameterSetDefaults(t *testing.T) {
	p := NewParameterSet(map[string]float64{"delay": 5.9})
	if p.Int("delay", 0) != 5 {
		t.Fatalf("expected truncation to 5, got %d", p.Int("delay", 0))
	}
	if p.Int("agents", 100) != 100 || p.Float("noise", 0.5) != 0.5 {
		t.Fatal("unset names must fall back to the default")
	}
	var zero ParameterSet
	if zero.Len() != 0 || zero.Float("x", 1) != 1 {
		t.Fatal("zero value must behave as an empty set")
	}
	if merged := zero.With("x", 2); merged.Float("x", 0) != 2 {
		t.Fatal("With on the zero value must work")
	}
}

func TestParameterSetJSON(t *testing.T) {
	data, err := json.Marshal(ParameterSet{})
	if err != nil {
		t.Fatalf("marshal zero set: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected empty object, got %s", data)
	}

	var p ParameterSet
	if err := json.Unmarshal([]byte(`{"impact":0.05,"agents":500}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Int("agents", 0) != 500 || p.Float("impact", 0) != 0.05 {
		t.Fatalf("unexpected decoded set %v", p.Map())
	}
	if err := json.Unmarshal([]byte(`{"impact":"high"}`), &p); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestValidationResultFailedFollowsBatteryOrder(t *testing.T) {
	r := ValidationResult{
		RunID:     "run-1",
		Scenario:  "climate",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Criteria: map[string]Criterion{
			IndicatorEmergence:   {Pass: false},
			CriterionConvergence: {Pass: true},
			CriterionValidity:    {Pass: false},
			IndicatorSymploke:    {Pass: false},
		},
	}
	want := []string{CriterionValidity, IndicatorSymploke, IndicatorEmergence}
	if got := r.Failed(); !reflect.DeepEqual(got, want) {
		t.Fatalf("failed order got %v want %v", got, want)
	}

	s := r.Summary()
	if s.RunID != "run-1" || s.Scenario != "climate" || s.OverallPass || !reflect.DeepEqual(s.Failed, want) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestCriterionOrderCoversBattery(t *testing.T) {
	if len(CriterionOrder) != 9 {
		t.Fatalf("expected nine criteria, got %d", len(CriterionOrder))
	}
	seen := make(map[string]bool, len(CriterionOrder))
	for _, name := range CriterionOrder {
		if seen[name] {
			t.Fatalf("duplicate criterion %s", name)
		}
		seen[name] = true
	}
}
