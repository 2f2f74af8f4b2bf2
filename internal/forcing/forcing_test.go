package forcing

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTrendSeasonal(t *testing.T) {
	series := TrendSeasonal(5, 1.0, 0.5, 2.0, 4)
	want := []float64{1.0, 3.5, 2.0, 0.5, 3.0}
	for i := range want {
		if math.Abs(series[i]-want[i]) > 1e-9 {
			t.Fatalf("step %d got=%f want=%f", i, series[i], want[i])
		}
	}
}

func TestPassthroughCopiesAndChecksHorizon(t *testing.T) {
	src := []float64{1, 2, 3}
	out, err := Passthrough(src, 3)
	if err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	out[0] = 99
	if src[0] != 1 {
		t.Fatal("passthrough must not alias its input")
	}
	if _, err := Passthrough(src, 4); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestOffsetLagBlend(t *testing.T) {
	base := []float64{1, 2, 3}
	if got := Offset(base, 0.5); got[2] != 3.5 || base[2] != 3 {
		t.Fatalf("offset got=%v base=%v", got, base)
	}
	lagged := Lag(base, 7)
	if lagged[0] != 7 || lagged[1] != 1 || lagged[2] != 2 {
		t.Fatalf("lag got=%v", lagged)
	}
	blend := Blend(base, []float64{2, 2}, 0.5)
	if len(blend) != 2 || blend[0] != 2 || blend[1] != 3 {
		t.Fatalf("blend got=%v", blend)
	}
}

func TestFitTrendRecoversLine(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 3 + 0.25*float64(i)
	}
	tr := FitTrend(values)
	if math.Abs(tr.Slope-0.25) > 1e-9 || math.Abs(tr.Intercept-3) > 1e-9 {
		t.Fatalf("trend got=%+v", tr)
	}
}

func TestSeasonalTrendFromTraining(t *testing.T) {
	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	all := make([]time.Time, 36)
	values := make([]float64, 36)
	for i := range all {
		all[i] = start.AddDate(0, i, 0)
		if all[i].Month() == time.July {
			values[i] = 10
		}
	}
	out, tr, err := SeasonalTrendFromTraining(all[:24], values[:24], all)
	if err != nil {
		t.Fatalf("seasonal trend: %v", err)
	}
	if len(out) != 36 {
		t.Fatalf("expected full horizon output, got %d", len(out))
	}
	julyIdx := 30
	janIdx := 24
	if math.Abs(out[julyIdx]-tr.At(julyIdx)-10) > 1e-9 || math.Abs(out[janIdx]-tr.At(janIdx)) > 1e-9 {
		t.Fatalf("unexpected climatology: july=%f jan=%f", out[julyIdx]-tr.At(julyIdx), out[janIdx]-tr.At(janIdx))
	}

	if _, _, err := SeasonalTrendFromTraining(nil, nil, all); err == nil {
		t.Fatal("expected empty training error")
	}
}
