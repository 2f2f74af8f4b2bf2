// Package observation holds the observed time series a scenario is
// validated against, together with its training/validation split.
package observation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const DefaultMinLength = 24

var (
	ErrInsufficientData = errors.New("insufficient observation data")
	ErrEmptySplit       = errors.New("empty training or validation window")
)

// Series is an ordered sequence of dated observations.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

func (s Series) Len() int {
	return len(s.Values)
}

func (s Series) Validate() error {
	if len(s.Dates) != len(s.Values) {
		return fmt.Errorf("series %q dates/values length mismatch: %d vs %d", s.Name, len(s.Dates), len(s.Values))
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("series %q value %d is not finite", s.Name, i)
		}
		if i > 0 && !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("series %q dates not strictly increasing at %d", s.Name, i)
		}
	}
	return nil
}

func (s Series) Mean() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Values {
		sum += v
	}
	return sum / float64(len(s.Values))
}

// Anomaly returns the series minus its own mean.
func (s Series) Anomaly() Series {
	mean := s.Mean()
	out := s.withValues(make([]float64, len(s.Values)))
	for i, v := range s.Values {
		out.Values[i] = v - mean
	}
	return out
}

// StressIndex rescales the series onto 0..100 by its min-max range. A flat
// series uses a 1e-6 range.
func (s Series) StressIndex() Series {
	out := s.withValues(make([]float64, len(s.Values)))
	if len(s.Values) == 0 {
		return out
	}
	lo, hi := s.Values[0], s.Values[0]
	for _, v := range s.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1e-6
	}
	for i, v := range s.Values {
		out.Values[i] = (v - lo) / span * 100
	}
	return out
}

// SplitIndex returns the index of the first observation dated on or after
// boundary.
func (s Series) SplitIndex(boundary time.Time) int {
	for i, d := range s.Dates {
		if !d.Before(boundary) {
			return i
		}
	}
	return len(s.Dates)
}

func (s Series) withValues(values []float64) Series {
	return Series{Name: s.Name, Dates: append([]time.Time(nil), s.Dates...), Values: values}
}

// Dataset is a validated series with its training/validation boundary.
type Dataset struct {
	Series   Series
	Boundary time.Time
	Split    int
}

// NewDataset validates s and splits it at boundary. It fails with
// ErrInsufficientData when s is shorter than minLength and with ErrEmptySplit
// when either window is empty.
func NewDataset(s Series, boundary time.Time, minLength int) (Dataset, error) {
	if err := s.Validate(); err != nil {
		return Dataset{}, err
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if s.Len() < minLength {
		return Dataset{}, fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, s.Len(), minLength)
	}
	split := s.SplitIndex(boundary)
	if split == 0 || split == s.Len() {
		return Dataset{}, fmt.Errorf("%w: split at %s leaves %d training and %d validation points",
			ErrEmptySplit, boundary.Format(time.DateOnly), split, s.Len()-split)
	}
	return Dataset{Series: s, Boundary: boundary, Split: split}, nil
}

// Check re-applies the NewDataset invariants to an already built dataset.
func (d Dataset) Check(minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if d.Series.Len() < minLength {
		return fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, d.Series.Len(), minLength)
	}
	if d.Split <= 0 || d.Split >= d.Series.Len() {
		return fmt.Errorf("%w: split index %d of %d", ErrEmptySplit, d.Split, d.Series.Len())
	}
	return nil
}

func (d Dataset) Len() int {
	return d.Series.Len()
}

func (d Dataset) Train() []float64 {
	return d.Series.Values[:d.Split]
}

func (d Dataset) Validation() []float64 {
	return d.Series.Values[d.Split:]
}

func (d Dataset) TrainDates() []time.Time {
	return d.Series.Dates[:d.Split]
}

// WithValues returns a dataset over the same dates and split with values
// replaced, for scenario-specific transforms.
func (d Dataset) WithValues(values []float64) Dataset {
	s := d.Series.withValues(append([]float64(nil), values...))
	return Dataset{Series: s, Boundary: d.Boundary, Split: d.Split}
}
