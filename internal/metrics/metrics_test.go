package metrics

import (
	"math"
	"testing"
)

func TestRMSEAlignsAndRejectsNonFinite(t *testing.T) {
	got, ok := RMSE([]float64{1, 2, 3, 100}, []float64{1, 2, 5}).Float()
	if !ok {
		t.Fatal("expected defined rmse")
	}
	want := math.Sqrt(4.0 / 3.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("rmse got=%f want=%f", got, want)
	}

	if RMSE([]float64{1, math.NaN()}, []float64{1, 2}).Valid() {
		t.Fatal("expected undefined rmse for NaN input")
	}
	if RMSE(nil, []float64{1}).Valid() {
		t.Fatal("expected undefined rmse for empty input")
	}
}

func TestNormalizedRMSEFlatSeriesUsesEpsilon(t *testing.T) {
	v := NormalizedRMSE([]float64{5, 5, 5}, []float64{0, 1, 2})
	if !v.Valid() {
		t.Fatal("expected defined normalized rmse for flat series")
	}
	scaled := MinMaxScale([]float64{5, 5, 5}, 1)
	for _, x := range scaled {
		if x != 0 {
			t.Fatalf("expected flat series to scale to zero, got %v", scaled)
		}
	}
}

func TestCorrelationZeroVarianceUndefined(t *testing.T) {
	if Correlation([]float64{1, 1, 1}, []float64{1, 2, 3}).Valid() {
		t.Fatal("expected undefined correlation for flat input")
	}
	got, ok := Correlation([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}).Float()
	if !ok || math.Abs(got-1) > 1e-12 {
		t.Fatalf("expected perfect correlation, got %f (ok=%t)", got, ok)
	}
	got, ok = Correlation([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}).Float()
	if !ok || math.Abs(got+1) > 1e-12 {
		t.Fatalf("expected perfect anti-correlation, got %f (ok=%t)", got, ok)
	}
}

func TestVarianceIsPopulationVariance(t *testing.T) {
	got, ok := Variance([]float64{1, 2, 3, 4}).Float()
	if !ok || math.Abs(got-1.25) > 1e-12 {
		t.Fatalf("variance got=%f want=1.25", got)
	}
	got, ok = Variance([]float64{7}).Float()
	if !ok || got != 0 {
		t.Fatalf("single sample variance got=%f", got)
	}
}

func TestWindowVariance(t *testing.T) {
	xs := []float64{0, 2, 0, 2}
	got, ok := WindowVariance(xs, 2).Float()
	if !ok || math.Abs(got-1) > 1e-12 {
		t.Fatalf("window variance got=%f want=1", got)
	}

	short, ok := WindowVariance([]float64{1, 2, 3}, 50).Float()
	full, _ := Variance([]float64{1, 2, 3}).Float()
	if !ok || short != full {
		t.Fatalf("short series should fall back to full variance: got=%f want=%f", short, full)
	}
	if WindowVariance(xs, 1).Valid() {
		t.Fatal("expected undefined for window < 2")
	}
}

func TestSpread(t *testing.T) {
	got, ok := Spread([]Value{Defined(1), Defined(4), Defined(2)}).Float()
	if !ok || got != 3 {
		t.Fatalf("spread got=%f", got)
	}
	if Spread([]Value{Defined(1), Undefined()}).Valid() {
		t.Fatal("expected undefined spread when one member is undefined")
	}
}

func TestValueHelpers(t *testing.T) {
	if Defined(math.Inf(1)).Valid() {
		t.Fatal("infinite values must be undefined")
	}
	if Undefined().Less(10) || Undefined().Greater(-10) {
		t.Fatal("undefined values never satisfy thresholds")
	}
	if Undefined().Or(3) != 3 {
		t.Fatal("Or should return the default for undefined values")
	}
}

func TestCohesionNeighborsVersusForcing(t *testing.T) {
	steps := 40
	forcing := make([]float64, steps)
	shared := make([]float64, steps)
	for i := 0; i < steps; i++ {
		forcing[i] = float64(i % 2)
		shared[i] = math.Sin(float64(i) * 0.3)
	}
	series := make([][]float64, 3)
	for u := range series {
		series[u] = make([]float64, steps)
		for i := range shared {
			series[u][i] = shared[i] * float64(u+1)
		}
	}
	panel := Panel{Series: series, Neighbors: [][]int{{1}, {0, 2}, {1}}}
	internal, external := Cohesion(panel, forcing)
	in, ok := internal.Float()
	if !ok || in < 0.99 {
		t.Fatalf("expected strong internal cohesion, got %v", internal)
	}
	ex, ok := external.Float()
	if !ok || ex >= in {
		t.Fatalf("expected external cohesion below internal: internal=%f external=%f", in, ex)
	}

	allPanel := Panel{Series: series}
	internalAll, _ := Cohesion(allPanel, forcing)
	if v, ok := internalAll.Float(); !ok || v < 0.99 {
		t.Fatalf("expected mean-field cohesion close to one, got %v", internalAll)
	}
}

func TestDominanceShare(t *testing.T) {
	uniform := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	got, ok := DominanceShare(uniform).Float()
	if !ok || math.Abs(got-0.25) > 1e-12 {
		t.Fatalf("uniform dominance got=%f want=0.25", got)
	}
	single := [][]float64{{5, 5}, {0, 0}}
	got, _ = DominanceShare(single).Float()
	if got != 1 {
		t.Fatalf("single unit dominance got=%f want=1", got)
	}
	zero := [][]float64{{0, 0}, {0, 0}}
	got, ok = DominanceShare(zero).Float()
	if !ok || got != 0 {
		t.Fatalf("all-zero dominance got=%f", got)
	}
}

func TestBullwhipRatioZeroDemandVariance(t *testing.T) {
	got, ok := BullwhipRatio([]float64{10, 10, 10}, []float64{1, 5, 9}).Float()
	if !ok || got != 0 {
		t.Fatalf("expected zero sentinel, got %f", got)
	}
	got, _ = BullwhipRatio([]float64{0, 2}, []float64{0, 4}).Float()
	if got != 4 {
		t.Fatalf("bullwhip ratio got=%f want=4", got)
	}
}

func TestCascadeSummary(t *testing.T) {
	peak, total := CascadeSummary([]float64{0, 3, 7, 1})
	if peak != 7 || total != 11 {
		t.Fatalf("peak=%f total=%f", peak, total)
	}
}
