// Package scalebridge is the public entry point for running multiscale
// validation passes, single-scale simulations and run queries.
package scalebridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalebridge/internal/logging"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/scenario"
	"scalebridge/internal/stats"
	"scalebridge/internal/storage"
	"scalebridge/internal/telemetry"
	"scalebridge/internal/validation"
)

const (
	defaultDBPath     = "scalebridge.db"
	defaultExportsDir = "exports"
	defaultWorkers    = 4

	ScaleMicro = "micro"
	ScaleMacro = "macro"
)

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir receives per-run directories and the run index. Empty
	// disables artifact output.
	ArtifactsDir string
	ExportsDir   string
	Workers      int
	MinLength    int
	Logger       *slog.Logger
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Recorder

	artifactsDir string
	exportsDir   string
	workers      int
	minLength    int

	initOnce sync.Once
	initErr  error
}

// DataRequest selects the observation series a command runs against.
type DataRequest struct {
	Observations string
	DateColumn   string
	ValueColumn  string
	// Split is the first validation date. Synthetic data defaults to a
	// boundary two thirds into the record.
	Split         string
	Synthetic     bool
	SyntheticSeed int64
}

type ValidateRequest struct {
	Scenario   string
	Data       DataRequest
	Params     map[string]float64
	Thresholds map[string]float64
	Workers    int
}

type ValidateSummary struct {
	RunID        string
	Scenario     string
	OverallPass  bool
	Failed       []string
	ArtifactsDir string
	Result       model.ValidationResult
}

type SimulateRequest struct {
	Scenario string
	Scale    string
	Data     DataRequest
	Params   map[string]float64
	Seed     int64
	// Horizon defaults to the observation length.
	Horizon int
}

type RunsRequest struct {
	Scenario string
	Limit    int
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ReportSummary struct {
	Path   string
	Report stats.ScenarioReport
}

type ScenarioInfo struct {
	Name       string
	Params     map[string]float64
	Thresholds validation.Thresholds
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.KindMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		metrics:      telemetry.New(),
		artifactsDir: opts.ArtifactsDir,
		exportsDir:   exportsDir,
		workers:      workers,
		minLength:    opts.MinLength,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// WriteMetrics exports the client's counters in the Prometheus text format.
func (c *Client) WriteMetrics(path string) error {
	return c.metrics.WriteTextfile(path)
}

// Scenarios lists every registered scenario with its default parameters and
// thresholds.
func (c *Client) Scenarios() ([]ScenarioInfo, error) {
	names := scenario.Names()
	out := make([]ScenarioInfo, 0, len(names))
	for _, name := range names {
		sc, err := scenario.New(name, scenario.Options{})
		if err != nil {
			return nil, err
		}
		info := ScenarioInfo{Name: name, Thresholds: sc.Thresholds()}
		if p, ok := sc.(interface{ Params() model.ParameterSet }); ok {
			info.Params = p.Params().Map()
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) Validate(ctx context.Context, req ValidateRequest) (ValidateSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ValidateSummary{}, err
	}
	sc, err := scenario.New(req.Scenario, scenario.Options{Params: req.Params, Thresholds: req.Thresholds})
	if err != nil {
		return ValidateSummary{}, err
	}
	data, err := c.dataset(sc.Name(), req.Data)
	if err != nil {
		return ValidateSummary{}, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = c.workers
	}
	engine := validation.NewEngine(c.logger)
	engine.Calibrator.Workers = workers
	engine.Metrics = c.metrics
	engine.MinLength = c.minLength

	result, err := engine.Evaluate(ctx, sc, data)
	if err != nil {
		return ValidateSummary{}, err
	}
	if err := c.store.SaveResult(ctx, result); err != nil {
		return ValidateSummary{}, fmt.Errorf("save result: %w", err)
	}

	micro, macro, err := c.calibratedTrajectories(ctx, sc, data, result, engine.Seeds)
	if err != nil {
		return ValidateSummary{}, err
	}
	for _, traj := range []model.Trajectory{micro, macro} {
		if err := c.store.SaveTrajectory(ctx, traj); err != nil {
			return ValidateSummary{}, fmt.Errorf("save trajectory: %w", err)
		}
	}

	summary := ValidateSummary{
		RunID:       result.RunID,
		Scenario:    result.Scenario,
		OverallPass: result.OverallPass,
		Failed:      result.Failed(),
		Result:      result,
	}
	if c.artifactsDir != "" {
		runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
			Config: stats.RunConfig{
				Scenario:      result.Scenario,
				Observations:  req.Data.Observations,
				Synthetic:     req.Data.Synthetic,
				SyntheticSeed: req.Data.SyntheticSeed,
				DateColumn:    req.Data.DateColumn,
				ValueColumn:   req.Data.ValueColumn,
				Split:         data.Boundary.Format(time.DateOnly),
				MinLength:     c.minLength,
				Workers:       workers,
				Params:        req.Params,
				Thresholds:    req.Thresholds,
			},
			Result: result,
			Micro:  micro.Values,
			Macro:  macro.Values,
		})
		if err != nil {
			return ValidateSummary{}, fmt.Errorf("write artifacts: %w", err)
		}
		if err := stats.AppendRunIndex(c.artifactsDir, stats.IndexEntry(result)); err != nil {
			return ValidateSummary{}, fmt.Errorf("append run index: %w", err)
		}
		summary.ArtifactsDir = runDir
	}
	return summary, nil
}

// calibratedTrajectories replays the calibrated micro and macro runs of a
// finished evaluation with the engine's seeds.
func (c *Client) calibratedTrajectories(ctx context.Context, sc validation.Scenario, data observation.Dataset, result model.ValidationResult, seeds validation.Seeds) (model.Trajectory, model.Trajectory, error) {
	setup, err := sc.Prepare(ctx, data)
	if err != nil {
		return model.Trajectory{}, model.Trajectory{}, err
	}
	spec := validation.RunSpec{
		Params:       result.Params,
		Forcing:      setup.Forcing,
		Assimilation: setup.Assimilation,
		Horizon:      data.Len(),
		Seed:         seeds.Calibration,
		Purpose:      validation.PurposeCalibrated,
	}
	microRun, err := sc.RunMicro(ctx, spec)
	if err != nil {
		return model.Trajectory{}, model.Trajectory{}, fmt.Errorf("replay micro: %w", err)
	}
	spec.Seed = seeds.Macro
	macroRun, err := sc.RunMacro(ctx, spec, microRun.Bridge)
	if err != nil {
		return model.Trajectory{}, model.Trajectory{}, fmt.Errorf("replay macro: %w", err)
	}

	micro := model.Trajectory{
		ID:        result.RunID + "-" + ScaleMicro,
		Scenario:  result.Scenario,
		Scale:     ScaleMicro,
		Seed:      seeds.Calibration,
		CreatedAt: result.CreatedAt,
		Params:    result.Params,
		Values:    sc.Observe(microRun.Aggregate),
		Bridge:    microRun.Bridge,
	}
	macro := model.Trajectory{
		ID:        result.RunID + "-" + ScaleMacro,
		Scenario:  result.Scenario,
		Scale:     ScaleMacro,
		Seed:      seeds.Macro,
		CreatedAt: result.CreatedAt,
		Params:    result.Params,
		Values:    sc.Observe(macroRun),
	}
	return micro, macro, nil
}

// Simulate runs one scale of a scenario with its default parameters plus
// overrides and stores the trajectory. The macro scale is bridged by a micro
// run with the same seed.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (model.Trajectory, error) {
	if err := c.Init(ctx); err != nil {
		return model.Trajectory{}, err
	}
	scale := strings.ToLower(strings.TrimSpace(req.Scale))
	if scale != ScaleMicro && scale != ScaleMacro {
		return model.Trajectory{}, fmt.Errorf("unknown scale %q (valid: micro, macro)", req.Scale)
	}
	sc, err := scenario.New(req.Scenario, scenario.Options{Params: req.Params})
	if err != nil {
		return model.Trajectory{}, err
	}
	data, err := c.dataset(sc.Name(), req.Data)
	if err != nil {
		return model.Trajectory{}, err
	}
	setup, err := sc.Prepare(ctx, data)
	if err != nil {
		return model.Trajectory{}, fmt.Errorf("prepare %s: %w", sc.Name(), err)
	}
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = data.Len()
	}
	if horizon > len(setup.Forcing) {
		return model.Trajectory{}, fmt.Errorf("horizon %d exceeds forcing length %d", horizon, len(setup.Forcing))
	}

	params := setup.Params
	if fitted, _ := sc.FitMacro(setup, data.Split); fitted.Len() > 0 {
		params = params.Merge(fitted)
	}
	// Explicit overrides win over the macro fit.
	params = params.Merge(model.NewParameterSet(req.Params))
	spec := validation.RunSpec{
		Params:       params,
		Forcing:      setup.Forcing[:horizon],
		Assimilation: head(setup.Assimilation, horizon),
		Horizon:      horizon,
		Seed:         req.Seed,
		Purpose:      "simulate",
	}

	c.metrics.ObserveSimulation(sc.Name(), ScaleMicro, spec.Purpose)
	micro, err := sc.RunMicro(ctx, spec)
	if err != nil {
		return model.Trajectory{}, fmt.Errorf("micro run: %w", err)
	}
	traj := model.Trajectory{
		ID:        uuid.NewString(),
		Scenario:  sc.Name(),
		Scale:     scale,
		Seed:      req.Seed,
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Values:    sc.Observe(micro.Aggregate),
		Bridge:    micro.Bridge,
	}
	if scale == ScaleMacro {
		c.metrics.ObserveSimulation(sc.Name(), ScaleMacro, spec.Purpose)
		values, err := sc.RunMacro(ctx, spec, micro.Bridge)
		if err != nil {
			return model.Trajectory{}, fmt.Errorf("macro run: %w", err)
		}
		traj.Values = sc.Observe(values)
	}
	if err := c.store.SaveTrajectory(ctx, traj); err != nil {
		return model.Trajectory{}, fmt.Errorf("save trajectory: %w", err)
	}
	c.logger.InfoContext(ctx, "simulation completed",
		"scenario", traj.Scenario,
		"scale", traj.Scale,
		"steps", len(traj.Values),
		"trajectory_id", traj.ID,
	)
	return traj, nil
}

func (c *Client) Trajectory(ctx context.Context, id string) (model.Trajectory, error) {
	if err := c.Init(ctx); err != nil {
		return model.Trajectory{}, err
	}
	traj, ok, err := c.store.GetTrajectory(ctx, id)
	if err != nil {
		return model.Trajectory{}, err
	}
	if !ok {
		return model.Trajectory{}, fmt.Errorf("trajectory not found: %s", id)
	}
	return traj, nil
}

// Runs lists stored results newest first, merged with the artifact run
// index so runs from earlier processes stay visible with the memory store.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.store.ListResults(ctx, req.Scenario)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(runs))
	for _, r := range runs {
		seen[r.RunID] = true
	}
	if c.artifactsDir != "" {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.RunID] || (req.Scenario != "" && e.Scenario != req.Scenario) {
				continue
			}
			created, err := time.Parse(time.RFC3339Nano, e.CreatedAtUTC)
			if err != nil {
				return nil, fmt.Errorf("run index entry %s: %w", e.RunID, err)
			}
			runs = append(runs, model.RunSummary{
				RunID:       e.RunID,
				Scenario:    e.Scenario,
				CreatedAt:   created,
				OverallPass: e.OverallPass,
				Failed:      e.Failed,
			})
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

// Show returns a stored result, falling back to the run artifacts.
func (c *Client) Show(ctx context.Context, req ShowRequest) (model.ValidationResult, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.ValidationResult{}, err
	}
	result, ok, err := c.store.GetResult(ctx, runID)
	if err != nil {
		return model.ValidationResult{}, err
	}
	if ok {
		return result, nil
	}
	if c.artifactsDir != "" {
		result, ok, err = stats.ReadResult(c.artifactsDir, runID)
		if err != nil {
			return model.ValidationResult{}, err
		}
		if ok {
			return result, nil
		}
	}
	return model.ValidationResult{}, fmt.Errorf("run not found: %s", runID)
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if c.artifactsDir == "" {
		return ExportSummary{}, errors.New("export requires an artifacts directory")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Report aggregates every artifact run of a scenario and writes the report
// next to the runs. An empty scenario covers all runs.
func (c *Client) Report(_ context.Context, scenarioName string) (ReportSummary, error) {
	if c.artifactsDir == "" {
		return ReportSummary{}, errors.New("report requires an artifacts directory")
	}
	report, err := stats.BuildScenarioReport(c.artifactsDir, scenarioName)
	if err != nil {
		return ReportSummary{}, err
	}
	report.GeneratedAt = time.Now().UTC().Format(time.RFC3339Nano)
	path, err := stats.WriteScenarioReport(c.artifactsDir, report)
	if err != nil {
		return ReportSummary{}, err
	}
	return ReportSummary{Path: path, Report: report}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		if err := c.Init(ctx); err != nil {
			return "", err
		}
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].RunID, nil
}

func (c *Client) dataset(name string, req DataRequest) (observation.Dataset, error) {
	var (
		series   observation.Series
		boundary time.Time
		err      error
	)
	switch {
	case req.Synthetic && req.Observations != "":
		return observation.Dataset{}, errors.New("use either observations or synthetic data")
	case req.Synthetic:
		series, boundary, err = scenario.Synthetic(name, req.SyntheticSeed)
		if err != nil {
			return observation.Dataset{}, err
		}
	case req.Observations != "":
		series, err = observation.LoadCSV(req.Observations, observation.CSVOptions{
			DateColumn:  req.DateColumn,
			ValueColumn: req.ValueColumn,
		})
		if err != nil {
			return observation.Dataset{}, err
		}
		if strings.TrimSpace(req.Split) == "" {
			return observation.Dataset{}, errors.New("split date is required for observation files")
		}
	default:
		return observation.Dataset{}, errors.New("observations file or synthetic data is required")
	}
	if strings.TrimSpace(req.Split) != "" {
		boundary, err = observation.ParseDate(req.Split)
		if err != nil {
			return observation.Dataset{}, fmt.Errorf("split: %w", err)
		}
	}
	return observation.NewDataset(series, boundary, c.minLength)
}

func head(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[:n]
}
