package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scalebridge/internal/model"
)

func sampleResult(runID, scenario string, created time.Time, pass bool) model.ValidationResult {
	return model.ValidationResult{
		RunID:     runID,
		Scenario:  scenario,
		CreatedAt: created,
		Params:    model.NewParameterSet(map[string]float64{"impact": 0.05}),
		Calibration: model.CalibrationRecord{
			Micro:     model.NewParameterSet(map[string]float64{"impact": 0.05}),
			BestScore: 1.25,
			Candidates: []model.CandidateScore{
				{Index: 0, Params: model.NewParameterSet(map[string]float64{"impact": 0.01}), Score: 2, Valid: true},
				{Index: 1, Params: model.NewParameterSet(map[string]float64{"impact": 0.05}), Score: 1.25, Valid: true},
			},
		},
		Criteria: map[string]model.Criterion{
			model.CriterionConvergence: {Pass: pass, Metrics: map[string]float64{"rmse_micro": 1.25, "threshold": 3}},
			model.IndicatorEmergence:   {Pass: true, Metrics: map[string]float64{"rmse_reduced": 4}, Undefined: []string{"rmse_reduced_full"}},
		},
		OverallPass: pass,
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	artifacts := RunArtifacts{
		Config: RunConfig{
			Observations: "prices.csv",
			Split:        "2023-01-01",
			Workers:      2,
		},
		Result: sampleResult(runID, "defi", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true),
		Micro:  []float64{1, 2, 3},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range []string{configFile, resultFile, calibrationFile, criteriaFile, microSeriesFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, macroSeriesFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no macro series without values, got err=%v", err)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}

	for _, file := range []string{configFile, resultFile, calibrationFile, criteriaFile, microSeriesFile} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestWriteRunArtifactsInheritsRunIdentity(t *testing.T) {
	baseDir := t.TempDir()
	result := sampleResult("run-abc", "climate", time.Now().UTC(), false)
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{Result: result}); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-abc")
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.RunID != "run-abc" || cfg.Scenario != "climate" {
		t.Fatalf("config did not inherit identity: %+v", cfg)
	}

	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{Config: RunConfig{RunID: "other"}, Result: result}); err == nil {
		t.Fatal("expected run id mismatch error")
	}
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestReadResultRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	want := sampleResult("run-rt", "logistics", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), true)
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{Result: want}); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	got, ok, err := ReadResult(baseDir, "run-rt")
	if err != nil || !ok {
		t.Fatalf("read result: ok=%t err=%v", ok, err)
	}
	if got.RunID != want.RunID || !got.CreatedAt.Equal(want.CreatedAt) || got.OverallPass != want.OverallPass {
		t.Fatalf("unexpected result identity: %+v", got)
	}
	if v, _ := got.Calibration.Micro.Get("impact"); v != 0.05 {
		t.Fatalf("calibrated params not restored: %v", got.Calibration.Micro.Map())
	}
	if len(got.Calibration.Candidates) != 2 {
		t.Fatalf("expected candidate table, got %d rows", len(got.Calibration.Candidates))
	}

	if _, ok, err := ReadResult(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing result to report ok=false, got ok=%t err=%v", ok, err)
	}
}

func TestCriteriaTableFollowsBatteryOrder(t *testing.T) {
	baseDir := t.TempDir()
	result := sampleResult("run-csv", "defi", time.Now().UTC(), true)
	runDir, err := WriteRunArtifacts(baseDir, RunArtifacts{Result: result})
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	file, err := os.Open(filepath.Join(runDir, criteriaFile))
	if err != nil {
		t.Fatalf("open criteria table: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read criteria table: %v", err)
	}
	want := [][]string{
		{"criterion", "pass", "metric", "value"},
		{model.CriterionConvergence, "true", "rmse_micro", "1.25"},
		{model.CriterionConvergence, "true", "threshold", "3"},
		{model.IndicatorEmergence, "true", "rmse_reduced", "4"},
		{model.IndicatorEmergence, "true", "rmse_reduced_full", ""},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(rows), rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Fatalf("row %d: got %v want %v", i, rows[i], want[i])
			}
		}
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	result := sampleResult("run-series", "climate", time.Now().UTC(), true)
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{Result: result, Macro: []float64{0.5, -1.25, 3}}); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	series, ok, err := ReadSeries(baseDir, "run-series", "macro")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if len(series) != 3 || series[1] != -1.25 {
		t.Fatalf("unexpected series: %v", series)
	}
	if _, ok, err := ReadSeries(baseDir, "run-series", "micro"); err != nil || ok {
		t.Fatalf("expected absent micro series, got ok=%t err=%v", ok, err)
	}
	if _, _, err := ReadSeries(baseDir, "run-series", "meso"); err == nil {
		t.Fatal("expected unknown scale error")
	}
}

func TestRunIndexAppendAndList(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "run-1", Scenario: "climate", CreatedAtUTC: "2026-02-20T00:00:01Z"},
		{RunID: "run-2", Scenario: "defi", CreatedAtUTC: "2026-02-20T00:00:03Z"},
		{RunID: "run-3", Scenario: "climate", CreatedAtUTC: "2026-02-20T00:00:02Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append run index: %v", err)
		}
	}

	listed, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listed))
	}
	if listed[0].RunID != "run-2" || listed[1].RunID != "run-3" || listed[2].RunID != "run-1" {
		t.Fatalf("unexpected order: %+v", listed)
	}

	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-1", Scenario: "climate", OverallPass: true, CreatedAtUTC: "2026-02-20T00:00:01Z"}); err != nil {
		t.Fatalf("upsert run index: %v", err)
	}
	listed, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(listed) != 3 || !listed[2].OverallPass {
		t.Fatalf("expected in-place update of run-1: %+v", listed)
	}
}

func TestListRunIndexEmptyAndRequiresRunID(t *testing.T) {
	listed, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty index, got %+v", listed)
	}
	if err := AppendRunIndex(t.TempDir(), RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestIndexEntryFromResult(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("x", 3600))
	entry := IndexEntry(sampleResult("run-x", "defi", created, false))
	if entry.RunID != "run-x" || entry.Scenario != "defi" || entry.OverallPass {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.CreatedAtUTC != "2024-01-02T02:04:05.0000006Z" {
		t.Fatalf("expected UTC timestamp, got %s", entry.CreatedAtUTC)
	}
	if len(entry.Failed) != 1 || entry.Failed[0] != model.CriterionConvergence {
		t.Fatalf("expected convergence failure, got %v", entry.Failed)
	}
}
