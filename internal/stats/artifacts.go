package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"scalebridge/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile      = "config.json"
	resultFile      = "result.json"
	calibrationFile = "calibration.json"
	criteriaFile    = "criteria.csv"
	microSeriesFile = "series_micro.csv"
	macroSeriesFile = "series_macro.csv"
)

// RunConfig records how a validation run was invoked.
type RunConfig struct {
	RunID         string             `json:"run_id"`
	Scenario      string             `json:"scenario"`
	Observations  string             `json:"observations,omitempty"`
	Synthetic     bool               `json:"synthetic,omitempty"`
	SyntheticSeed int64              `json:"synthetic_seed,omitempty"`
	DateColumn    string             `json:"date_column,omitempty"`
	ValueColumn   string             `json:"value_column,omitempty"`
	Split         string             `json:"split"`
	MinLength     int                `json:"min_length,omitempty"`
	Workers       int                `json:"workers"`
	Params        map[string]float64 `json:"params,omitempty"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"`
}

// RunArtifacts is everything written for one validation run. Micro and Macro
// are optional full-horizon trajectories of the calibrated models.
type RunArtifacts struct {
	Config RunConfig              `json:"config"`
	Result model.ValidationResult `json:"result"`
	Micro  []float64              `json:"micro,omitempty"`
	Macro  []float64              `json:"macro,omitempty"`
}

type RunIndexEntry struct {
	RunID        string   `json:"run_id"`
	Scenario     string   `json:"scenario"`
	OverallPass  bool     `json:"overall_pass"`
	Failed       []string `json:"failed,omitempty"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

// IndexEntry builds the run index row for a result.
func IndexEntry(result model.ValidationResult) RunIndexEntry {
	return RunIndexEntry{
		RunID:        result.RunID,
		Scenario:     result.Scenario,
		OverallPass:  result.OverallPass,
		Failed:       result.Failed(),
		CreatedAtUTC: result.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// WriteRunArtifacts writes the run directory under baseDir and returns its
// path. The run id comes from the result; the config inherits it when empty.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Result.RunID)
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if artifacts.Config.RunID == "" {
		artifacts.Config.RunID = runID
	}
	if artifacts.Config.RunID != runID {
		return "", fmt.Errorf("run config run id mismatch: got=%s want=%s", artifacts.Config.RunID, runID)
	}
	if artifacts.Config.Scenario == "" {
		artifacts.Config.Scenario = artifacts.Result.Scenario
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, resultFile), artifacts.Result); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, calibrationFile), artifacts.Result.Calibration); err != nil {
		return "", err
	}
	if err := WriteCriteriaTable(filepath.Join(runDir, criteriaFile), artifacts.Result); err != nil {
		return "", err
	}
	if len(artifacts.Micro) > 0 {
		if err := WriteSeriesCSV(filepath.Join(runDir, microSeriesFile), "micro", artifacts.Micro); err != nil {
			return "", err
		}
	}
	if len(artifacts.Macro) > 0 {
		if err := WriteSeriesCSV(filepath.Join(runDir, macroSeriesFile), "macro", artifacts.Macro); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir. Series files are
// copied when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, resultFile, calibrationFile, criteriaFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{microSeriesFile, macroSeriesFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadResult(baseDir, runID string) (model.ValidationResult, bool, error) {
	var result model.ValidationResult
	ok, err := readJSON(filepath.Join(baseDir, runID, resultFile), &result)
	return result, ok, err
}

// WriteCriteriaTable writes one row per criterion metric in battery order,
// with metric names sorted inside each criterion.
func WriteCriteriaTable(path string, result model.ValidationResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"criterion", "pass", "metric", "value"}); err != nil {
		return err
	}
	for _, name := range model.CriterionOrder {
		c, ok := result.Criteria[name]
		if !ok {
			continue
		}
		pass := strconv.FormatBool(c.Pass)
		keys := make([]string, 0, len(c.Metrics))
		for k := range c.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := writer.Write([]string{name, pass, k, strconv.FormatFloat(c.Metrics[k], 'g', -1, 64)}); err != nil {
				return err
			}
		}
		for _, k := range c.Undefined {
			if err := writer.Write([]string{name, pass, k, ""}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteSeriesCSV(path, column string, values []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"step", column}); err != nil {
		return err
	}
	for i, v := range values {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(v, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSeries reads a micro or macro series written for runID.
func ReadSeries(baseDir, runID, scale string) ([]float64, bool, error) {
	var name string
	switch scale {
	case "micro":
		name = microSeriesFile
	case "macro":
		name = macroSeriesFile
	default:
		return nil, false, fmt.Errorf("unknown series scale %q", scale)
	}
	file, err := os.Open(filepath.Join(baseDir, runID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
