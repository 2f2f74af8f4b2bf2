package stats

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeIndexedRun(t *testing.T, baseDir, runID, scenario string, created time.Time, pass bool, score float64) {
	t.Helper()
	result := sampleResult(runID, scenario, created, pass)
	result.Calibration.BestScore = score
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{Result: result}); err != nil {
		t.Fatalf("write run artifacts for %s: %v", runID, err)
	}
	if err := AppendRunIndex(baseDir, IndexEntry(result)); err != nil {
		t.Fatalf("append run index for %s: %v", runID, err)
	}
}

func TestBuildScenarioReport(t *testing.T) {
	base := t.TempDir()
	start := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	writeIndexedRun(t, base, "run-1", "defi", start, true, 1)
	writeIndexedRun(t, base, "run-2", "defi", start.Add(time.Minute), false, 3)
	writeIndexedRun(t, base, "run-3", "climate", start.Add(2*time.Minute), true, 0.5)

	report, err := BuildScenarioReport(base, "defi")
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.TotalRuns != 2 || report.PassRuns != 1 || report.PassRate != 0.5 {
		t.Fatalf("unexpected pass accounting: %+v", report)
	}
	if report.AvgBestScore != 2 || report.MinBestScore != 1 || report.MaxBestScore != 3 {
		t.Fatalf("unexpected score summary: %+v", report)
	}
	if math.Abs(report.StdBestScore-math.Sqrt2) > 1e-12 {
		t.Fatalf("expected sample std sqrt(2), got %f", report.StdBestScore)
	}
	if report.Runs[0].RunID != "run-2" {
		t.Fatalf("expected newest run first, got %+v", report.Runs)
	}
	conv := report.Criteria["c1_convergence"]
	if conv.Runs != 2 || conv.Passes != 1 || conv.PassRate != 0.5 {
		t.Fatalf("unexpected convergence stats: %+v", conv)
	}

	all, err := BuildScenarioReport(base, "")
	if err != nil {
		t.Fatalf("build full report: %v", err)
	}
	if all.TotalRuns != 3 {
		t.Fatalf("expected every run, got %d", all.TotalRuns)
	}
}

func TestBuildScenarioReportSingleRunHasZeroSpread(t *testing.T) {
	base := t.TempDir()
	writeIndexedRun(t, base, "run-1", "logistics", time.Now().UTC(), true, 0.2)
	report, err := BuildScenarioReport(base, "logistics")
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.StdBestScore != 0 || report.AvgBestScore != 0.2 {
		t.Fatalf("unexpected single-run summary: %+v", report)
	}
}

func TestBuildScenarioReportMissingResult(t *testing.T) {
	base := t.TempDir()
	if err := AppendRunIndex(base, RunIndexEntry{RunID: "ghost", Scenario: "defi", CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("append run index: %v", err)
	}
	if _, err := BuildScenarioReport(base, "defi"); err == nil {
		t.Fatal("expected missing result error")
	}
}

func TestWriteScenarioReport(t *testing.T) {
	base := t.TempDir()
	path, err := WriteScenarioReport(base, ScenarioReport{Scenario: "climate", TotalRuns: 1})
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	if path != filepath.Join(base, reportsDir, "climate_report.json") {
		t.Fatalf("unexpected report path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var got ScenarioReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.GeneratedAt == "" || got.TotalRuns != 1 {
		t.Fatalf("unexpected report: %+v", got)
	}
}
