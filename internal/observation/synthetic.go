package observation

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticClimate generates a monthly regional mean temperature series with
// a seasonal cycle, a slow warming trend and weather noise.
func SyntheticClimate(start time.Time, months int, seed int64) Series {
	rng := rand.New(rand.NewSource(seed))
	s := Series{Name: "synthetic_climate", Dates: make([]time.Time, months), Values: make([]float64, months)}
	for i := 0; i < months; i++ {
		d := start.AddDate(0, i, 0)
		phase := 2 * math.Pi * float64(int(d.Month())-4) / 12
		s.Dates[i] = d
		s.Values[i] = 15 + 8*math.Sin(phase) + 0.003*float64(i) + rng.NormFloat64()*0.8
	}
	return s
}

// SyntheticDeFi generates a daily collateral price that random-walks around
// 2000 and crashes 15% per day for a few days a third of the way in.
func SyntheticDeFi(start time.Time, days int, seed int64) Series {
	rng := rand.New(rand.NewSource(seed))
	s := Series{Name: "synthetic_defi", Dates: make([]time.Time, days), Values: make([]float64, days)}
	crash := days / 3
	for i := 0; i < days; i++ {
		s.Dates[i] = start.AddDate(0, 0, i)
		switch {
		case i == 0:
			s.Values[i] = 2000
		case i > crash && i < crash+5:
			s.Values[i] = s.Values[i-1] * 0.85
		default:
			s.Values[i] = s.Values[i-1] + rng.NormFloat64()*20
		}
	}
	return s
}

// SyntheticLogistics generates a daily freight price proxy: stable, then a
// double-sigmoid crisis peak, then a fall back, with noise.
func SyntheticLogistics(start time.Time, days int, seed int64) Series {
	rng := rand.New(rand.NewSource(seed))
	s := Series{Name: "synthetic_logistics", Dates: make([]time.Time, days), Values: make([]float64, days)}
	for i := 0; i < days; i++ {
		x := -5.0
		if days > 1 {
			x = -5 + 10*float64(i)/float64(days-1)
		}
		rise := 1 / (1 + math.Exp(-(x+2)*2))
		fall := 1 / (1 + math.Exp((x-2)*2))
		s.Dates[i] = start.AddDate(0, 0, i)
		s.Values[i] = 10 + 50*rise*fall + rng.NormFloat64()*2
	}
	return s
}
