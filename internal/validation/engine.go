package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scalebridge/internal/calibration"
	"scalebridge/internal/metrics"
	"scalebridge/internal/model"
	"scalebridge/internal/observation"
	"scalebridge/internal/telemetry"
)

// Engine evaluates a scenario against an observation dataset.
type Engine struct {
	// Thresholds overrides the scenario's own thresholds when set.
	Thresholds *Thresholds
	Seeds      Seeds
	Calibrator calibration.GridSearch
	Logger     *slog.Logger
	Metrics    *telemetry.Recorder
	// MinLength is the minimum usable series length; zero means
	// observation.DefaultMinLength.
	MinLength int
	Now       func() time.Time
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		Seeds:      DefaultSeeds(),
		Calibrator: calibration.GridSearch{Workers: 1, Logger: logger},
		Logger:     logger,
	}
}

// run carries the per-evaluation state shared by the criteria.
type run struct {
	scenario   Scenario
	setup      Setup
	thresholds Thresholds
	seeds      Seeds
	split      int
	horizon    int
	params     model.ParameterSet
	perturb    []string

	observed []float64
	obsVal   []float64
	obsStd   metrics.Value
	micro    MicroTrajectory
	microVal []float64
	macroObs []float64
	reduced  MicroTrajectory
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) Evaluate(ctx context.Context, sc Scenario, data observation.Dataset) (model.ValidationResult, error) {
	if sc == nil {
		return model.ValidationResult{}, errors.New("scenario is required")
	}
	minLength := e.MinLength
	if minLength <= 0 {
		minLength = observation.DefaultMinLength
	}
	if err := data.Check(minLength); err != nil {
		return model.ValidationResult{}, err
	}
	thresholds := sc.Thresholds()
	if e.Thresholds != nil {
		thresholds = *e.Thresholds
	}
	if err := thresholds.Validate(); err != nil {
		return model.ValidationResult{}, fmt.Errorf("thresholds: %w", err)
	}

	logger := e.logger().With("scenario", sc.Name())
	started := time.Now()
	logger.InfoContext(ctx, "starting evaluation",
		"steps", data.Len(),
		"train_steps", data.Split,
	)

	setup, err := sc.Prepare(ctx, data)
	if err != nil {
		return model.ValidationResult{}, fmt.Errorf("prepare %s: %w", sc.Name(), err)
	}
	horizon := data.Len()
	if len(setup.Observed) != horizon {
		return model.ValidationResult{}, fmt.Errorf("prepare %s: observed length %d != dataset length %d", sc.Name(), len(setup.Observed), horizon)
	}
	if len(setup.Forcing) < horizon {
		return model.ValidationResult{}, fmt.Errorf("prepare %s: forcing length %d < horizon %d", sc.Name(), len(setup.Forcing), horizon)
	}

	r := &run{
		scenario:   sc,
		setup:      setup,
		thresholds: thresholds,
		seeds:      e.Seeds,
		split:      data.Split,
		horizon:    horizon,
		perturb:    sc.PerturbKeys(),
		observed:   setup.Observed,
		obsVal:     setup.Observed[data.Split:],
	}
	r.obsStd = metrics.StdDev(r.obsVal)

	record, err := e.calibrate(ctx, r, logger)
	if err != nil {
		return model.ValidationResult{}, err
	}

	if err := e.baseRuns(ctx, r); err != nil {
		return model.ValidationResult{}, err
	}

	criteria := make(map[string]model.Criterion, len(model.CriterionOrder))
	steps := []struct {
		name string
		fn   func(context.Context, *run) (model.Criterion, error)
	}{
		{model.CriterionConvergence, e.convergence},
		{model.CriterionRobustness, e.robustness},
		{model.CriterionReplication, e.replication},
		{model.CriterionValidity, e.validity},
		{model.CriterionUncertainty, e.uncertainty},
		{model.IndicatorSymploke, e.symploke},
		{model.IndicatorNonLocality, e.nonLocality},
		{model.IndicatorPersistence, e.persistence},
		{model.IndicatorEmergence, e.emergence},
	}
	overall := true
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return model.ValidationResult{}, fmt.Errorf("evaluation cancelled: %w", err)
		}
		c, err := step.fn(ctx, r)
		if err != nil {
			return model.ValidationResult{}, fmt.Errorf("%s: %w", step.name, err)
		}
		criteria[step.name] = c
		overall = overall && c.Pass
		logger.DebugContext(ctx, "criterion evaluated", "criterion", step.name, "pass", c.Pass)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	result := model.ValidationResult{
		RunID:       uuid.NewString(),
		Scenario:    sc.Name(),
		CreatedAt:   now().UTC(),
		Data:        summarize(data),
		Params:      r.params,
		Calibration: record,
		Criteria:    criteria,
		Extras:      copyExtras(r.micro.Extras),
		OverallPass: overall,
	}
	elapsed := time.Since(started)
	e.Metrics.ObserveResult(result, elapsed)
	logger.InfoContext(ctx, "evaluation completed",
		"run_id", result.RunID,
		"overall_pass", result.OverallPass,
		"failed", result.Failed(),
		"duration", elapsed,
	)
	return result, nil
}

func (e *Engine) calibrate(ctx context.Context, r *run, logger *slog.Logger) (model.CalibrationRecord, error) {
	sc := r.scenario
	fitted, ok := sc.FitMacro(r.setup, r.split)
	if !ok {
		logger.InfoContext(ctx, "macro fit unavailable, using configured coefficients", "macro", fitted.Map())
	}
	base := r.setup.Params.Merge(fitted)

	train := r.observed[:r.split]
	spec := RunSpec{
		Forcing: r.setup.Forcing[:r.split],
		Horizon: r.split,
		Seed:    r.seeds.Calibration,
		Purpose: PurposeCalibration,
	}
	score := func(ctx context.Context, params model.ParameterSet) (metrics.Value, error) {
		s := spec
		s.Params = params
		e.Metrics.ObserveSimulation(sc.Name(), "micro", PurposeCalibration)
		if scorer, ok := sc.(CandidateScorer); ok {
			return scorer.ScoreCandidate(ctx, s, train)
		}
		traj, err := sc.RunMicro(ctx, s)
		if err != nil {
			return metrics.Undefined(), err
		}
		return metrics.RMSE(sc.Observe(traj.Aggregate), train), nil
	}

	grid := sc.CalibrationGrid()
	res, err := e.Calibrator.Calibrate(ctx, grid, base, score)
	if err != nil {
		return model.CalibrationRecord{}, fmt.Errorf("calibrate %s: %w", sc.Name(), err)
	}
	e.Metrics.ObserveCandidates(sc.Name(), len(res.Candidates)-res.Invalid(), res.Invalid())
	r.params = res.Best

	candidates := make([]model.CandidateScore, len(res.Candidates))
	for i, c := range res.Candidates {
		c.Params = axisValues(grid, c.Params)
		candidates[i] = c
	}
	return model.CalibrationRecord{
		Macro:      fitted,
		Micro:      axisValues(grid, res.Best),
		MacroFit:   ok,
		BestScore:  res.BestScore,
		Candidates: candidates,
	}, nil
}

func axisValues(grid calibration.Grid, params model.ParameterSet) model.ParameterSet {
	out := make(map[string]float64, len(grid))
	for _, axis := range grid {
		if v, ok := params.Get(axis.Name); ok {
			out[axis.Name] = v
		}
	}
	return model.NewParameterSet(out)
}

// evalSpec is a full-horizon RunSpec with the scenario's assimilation series.
func (r *run) evalSpec(params model.ParameterSet, forcing []float64, seed int64, purpose string) RunSpec {
	return RunSpec{
		Params:       params,
		Forcing:      forcing,
		Assimilation: r.setup.Assimilation,
		Horizon:      r.horizon,
		Seed:         seed,
		Purpose:      purpose,
	}
}

func (e *Engine) runMicro(ctx context.Context, r *run, spec RunSpec) (MicroTrajectory, error) {
	if err := ctx.Err(); err != nil {
		return MicroTrajectory{}, err
	}
	e.Metrics.ObserveSimulation(r.scenario.Name(), "micro", spec.Purpose)
	traj, err := r.scenario.RunMicro(ctx, spec)
	if err != nil {
		return MicroTrajectory{}, fmt.Errorf("%s micro run: %w", spec.Purpose, err)
	}
	return traj, nil
}

func (e *Engine) baseRuns(ctx context.Context, r *run) error {
	var err error
	r.micro, err = e.runMicro(ctx, r, r.evalSpec(r.params, r.setup.Forcing, r.seeds.Calibration, PurposeCalibrated))
	if err != nil {
		return err
	}
	r.microVal = tail(r.micro.Aggregate, r.split)

	e.Metrics.ObserveSimulation(r.scenario.Name(), "macro", PurposeCalibrated)
	macro, err := r.scenario.RunMacro(ctx, r.evalSpec(r.params, r.setup.Forcing, r.seeds.Macro, PurposeCalibrated), r.micro.Bridge)
	if err != nil {
		return fmt.Errorf("calibrated macro run: %w", err)
	}
	r.macroObs = r.scenario.Observe(macro)

	r.reduced, err = e.runMicro(ctx, r, r.evalSpec(r.scenario.Reduce(r.params), r.setup.Forcing, r.seeds.Reduced, PurposeReduced))
	return err
}

func tail(xs []float64, from int) []float64 {
	if from >= len(xs) {
		return nil
	}
	return xs[from:]
}

func summarize(data observation.Dataset) model.DataSummary {
	s := data.Series
	out := model.DataSummary{
		Steps:          data.Len(),
		TrainSteps:     data.Split,
		ValidationSize: data.Len() - data.Split,
		ObsMean:        s.Mean(),
	}
	if n := len(s.Dates); n > 0 {
		out.Start = s.Dates[0].Format(time.DateOnly)
		out.End = s.Dates[n-1].Format(time.DateOnly)
		if data.Split < n {
			out.Split = s.Dates[data.Split].Format(time.DateOnly)
		}
	}
	return out
}

func copyExtras(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
