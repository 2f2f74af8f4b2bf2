package observation

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func monthly(n int) Series {
	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := Series{Dates: make([]time.Time, n), Values: make([]float64, n)}
	for i := 0; i < n; i++ {
		s.Dates[i] = start.AddDate(0, i, 0)
		s.Values[i] = float64(i)
	}
	return s
}

func TestNewDatasetSplitsAtBoundary(t *testing.T) {
	s := monthly(36)
	ds, err := NewDataset(s, time.Date(2002, time.January, 1, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("new dataset: %v", err)
	}
	if ds.Split != 24 || len(ds.Train()) != 24 || len(ds.Validation()) != 12 {
		t.Fatalf("unexpected split=%d train=%d val=%d", ds.Split, len(ds.Train()), len(ds.Validation()))
	}
	if !ds.TrainDates()[23].Before(ds.Series.Dates[24]) {
		t.Fatal("training window must precede validation window")
	}
}

func TestNewDatasetFatalErrors(t *testing.T) {
	if _, err := NewDataset(monthly(10), time.Date(2000, time.June, 1, 0, 0, 0, 0, time.UTC), 24); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := NewDataset(monthly(36), time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC), 24); !errors.Is(err, ErrEmptySplit) {
		t.Fatalf("expected ErrEmptySplit for empty training window, got %v", err)
	}
	if _, err := NewDataset(monthly(36), time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC), 24); !errors.Is(err, ErrEmptySplit) {
		t.Fatalf("expected ErrEmptySplit for empty validation window, got %v", err)
	}
	if err := (Dataset{Series: monthly(30), Split: 0}).Check(24); !errors.Is(err, ErrEmptySplit) {
		t.Fatalf("expected ErrEmptySplit from Check, got %v", err)
	}
}

func TestSeriesValidateRejectsUnorderedDates(t *testing.T) {
	s := monthly(3)
	s.Dates[2] = s.Dates[0]
	if err := s.Validate(); err == nil {
		t.Fatal("expected unordered date error")
	}
	s = monthly(3)
	s.Values[1] = math.NaN()
	if err := s.Validate(); err == nil {
		t.Fatal("expected non-finite value error")
	}
}

func TestAnomalyAndStressIndex(t *testing.T) {
	s := monthly(5)
	anom := s.Anomaly()
	if math.Abs(anom.Mean()) > 1e-12 || s.Values[0] != 0 {
		t.Fatalf("anomaly mean=%f original mutated=%v", anom.Mean(), s.Values[0] != 0)
	}
	stress := s.StressIndex()
	if stress.Values[0] != 0 || stress.Values[4] != 100 {
		t.Fatalf("stress endpoints got %v", stress.Values)
	}
	flat := Series{Dates: s.Dates, Values: []float64{3, 3, 3, 3, 3}}.StressIndex()
	for _, v := range flat.Values {
		if v != 0 {
			t.Fatalf("flat stress should be zero, got %v", flat.Values)
		}
	}
}

func TestReadCSVNamedAndLastColumn(t *testing.T) {
	raw := "date,station,tavg\n2001-01-01,a,1.5\n2001-02-01,b,\n2001-03-01,c,2.5\n"
	s, err := ReadCSV(strings.NewReader(raw), CSVOptions{ValueColumn: "tavg"})
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if s.Len() != 2 || s.Values[1] != 2.5 {
		t.Fatalf("unexpected series %+v", s.Values)
	}

	raw = "Date,price\n2020-03-01,2000\n2020-03-02,1990.5\n"
	s, err = ReadCSV(strings.NewReader(raw), CSVOptions{})
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if s.Len() != 2 || s.Values[1] != 1990.5 {
		t.Fatalf("unexpected series %+v", s.Values)
	}

	if _, err := ReadCSV(strings.NewReader("when,value\n"), CSVOptions{}); err == nil {
		t.Fatal("expected missing date column error")
	}
	if _, err := ReadCSV(strings.NewReader("date,value\n2020-01-01,abc\n"), CSVOptions{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadCSVRoundTrip(t *testing.T) {
	s := SyntheticClimate(time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), 30, 1)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, s); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	path := filepath.Join(t.TempDir(), "obs.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	loaded, err := LoadCSV(path, CSVOptions{ValueColumn: "value"})
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if loaded.Name != "obs" || loaded.Len() != 30 {
		t.Fatalf("unexpected loaded series name=%s len=%d", loaded.Name, loaded.Len())
	}
	for i := range s.Values {
		if loaded.Values[i] != s.Values[i] || !loaded.Dates[i].Equal(s.Dates[i]) {
			t.Fatalf("row %d mismatch", i)
		}
	}
	if _, err := LoadCSV("", CSVOptions{}); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSyntheticGenerators(t *testing.T) {
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	defi := SyntheticDeFi(start, 100, 42)
	if defi.Values[0] != 2000 || defi.Values[37] >= defi.Values[33] {
		t.Fatalf("expected crash after day 33: %v", defi.Values[30:40])
	}
	logi := SyntheticLogistics(start, 400, 42)
	if logi.Values[200] < logi.Values[0]+20 {
		t.Fatalf("expected mid-horizon crisis peak: start=%f mid=%f", logi.Values[0], logi.Values[200])
	}
	for _, s := range []Series{defi, logi, SyntheticClimate(start, 48, 1)} {
		if err := s.Validate(); err != nil {
			t.Fatalf("synthetic series invalid: %v", err)
		}
	}
}
