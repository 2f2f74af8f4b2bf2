package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scalebridge/internal/model"
)

const reportsDir = "reports"

type ReportRun struct {
	RunID       string  `json:"run_id"`
	OverallPass bool    `json:"overall_pass"`
	BestScore   float64 `json:"best_score"`
	CreatedAt   string  `json:"created_at_utc"`
}

type CriterionStats struct {
	Runs     int     `json:"runs"`
	Passes   int     `json:"passes"`
	PassRate float64 `json:"pass_rate"`
}

// ScenarioReport aggregates every indexed run of one scenario.
type ScenarioReport struct {
	Scenario     string                    `json:"scenario"`
	GeneratedAt  string                    `json:"generated_at_utc"`
	TotalRuns    int                       `json:"total_runs"`
	PassRuns     int                       `json:"pass_runs"`
	PassRate     float64                   `json:"pass_rate"`
	AvgBestScore float64                   `json:"avg_best_score"`
	StdBestScore float64                   `json:"std_best_score"`
	MinBestScore float64                   `json:"min_best_score"`
	MaxBestScore float64                   `json:"max_best_score"`
	Criteria     map[string]CriterionStats `json:"criteria"`
	Runs         []ReportRun               `json:"runs"`
}

// BuildScenarioReport reads the result of each indexed run of scenario. An
// empty scenario aggregates every run.
func BuildScenarioReport(baseDir, scenario string) (ScenarioReport, error) {
	index, err := ListRunIndex(baseDir)
	if err != nil {
		return ScenarioReport{}, err
	}
	report := ScenarioReport{
		Scenario: scenario,
		Criteria: make(map[string]CriterionStats, len(model.CriterionOrder)),
		Runs:     make([]ReportRun, 0, len(index)),
	}
	scores := make([]float64, 0, len(index))
	for _, entry := range index {
		if scenario != "" && entry.Scenario != scenario {
			continue
		}
		result, ok, err := ReadResult(baseDir, entry.RunID)
		if err != nil {
			return ScenarioReport{}, err
		}
		if !ok {
			return ScenarioReport{}, fmt.Errorf("result not found for run id: %s", entry.RunID)
		}
		report.TotalRuns++
		if result.OverallPass {
			report.PassRuns++
		}
		for name, c := range result.Criteria {
			cs := report.Criteria[name]
			cs.Runs++
			if c.Pass {
				cs.Passes++
			}
			report.Criteria[name] = cs
		}
		scores = append(scores, result.Calibration.BestScore)
		report.Runs = append(report.Runs, ReportRun{
			RunID:       result.RunID,
			OverallPass: result.OverallPass,
			BestScore:   result.Calibration.BestScore,
			CreatedAt:   entry.CreatedAtUTC,
		})
	}
	if report.TotalRuns > 0 {
		report.PassRate = float64(report.PassRuns) / float64(report.TotalRuns)
	}
	for name, cs := range report.Criteria {
		cs.PassRate = float64(cs.Passes) / float64(cs.Runs)
		report.Criteria[name] = cs
	}
	if len(scores) > 0 {
		report.AvgBestScore, report.StdBestScore = stat.MeanStdDev(scores, nil)
		if len(scores) == 1 {
			report.StdBestScore = 0
		}
		report.MinBestScore = floats.Min(scores)
		report.MaxBestScore = floats.Max(scores)
	}
	return report, nil
}

// WriteScenarioReport writes the report under baseDir/reports and returns
// the file path.
func WriteScenarioReport(baseDir string, report ScenarioReport) (string, error) {
	name := report.Scenario
	if name == "" {
		name = "all"
	}
	dir := filepath.Join(baseDir, reportsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if report.GeneratedAt == "" {
		report.GeneratedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	path := filepath.Join(dir, name+"_report.json")
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}
