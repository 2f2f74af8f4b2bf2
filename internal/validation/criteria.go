package validation

import (
	"context"
	"math"

	"scalebridge/internal/calibration"
	"scalebridge/internal/forcing"
	"scalebridge/internal/metrics"
	"scalebridge/internal/model"
)

// criterion accumulates metrics; undefined values are listed by name.
type criterion struct {
	c model.Criterion
}

func newCriterion() *criterion {
	return &criterion{c: model.Criterion{Metrics: make(map[string]float64)}}
}

func (b *criterion) record(name string, v metrics.Value) metrics.Value {
	if f, ok := v.Float(); ok {
		b.c.Metrics[name] = f
	} else {
		b.c.Undefined = append(b.c.Undefined, name)
	}
	return v
}

func (b *criterion) set(name string, v float64) {
	b.c.Metrics[name] = v
}

func (b *criterion) done(pass bool) model.Criterion {
	b.c.Pass = pass
	return b.c
}

// absDiff is |a - b|, undefined if either side is.
func absDiff(a, b metrics.Value) metrics.Value {
	x, ok1 := a.Float()
	y, ok2 := b.Float()
	if !ok1 || !ok2 {
		return metrics.Undefined()
	}
	return metrics.Defined(math.Abs(x - y))
}

func scaled(v metrics.Value, factor float64) metrics.Value {
	f, ok := v.Float()
	if !ok {
		return metrics.Undefined()
	}
	return metrics.Defined(f * factor)
}

// convergence compares the calibrated micro and macro trajectories with the
// validation window.
func (e *Engine) convergence(_ context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	simVal := tail(r.scenario.Observe(r.micro.Aggregate), r.split)
	macroVal := tail(r.macroObs, r.split)

	b.record("obs_std", r.obsStd)
	limit := b.record("threshold", scaled(r.obsStd, r.thresholds.RMSEStdFactor))
	rmseMicro := b.record("rmse_micro", metrics.RMSE(simVal, r.obsVal))
	rmseMacro := b.record("rmse_macro", metrics.RMSE(macroVal, r.obsVal))
	corrMicro := b.record("corr_micro", metrics.Correlation(simVal, r.obsVal))
	corrMacro := b.record("corr_macro", metrics.Correlation(macroVal, r.obsVal))

	lim, ok := limit.Float()
	pass := ok &&
		rmseMicro.Less(lim) &&
		rmseMacro.Less(lim) &&
		corrMicro.Greater(r.thresholds.MinCorrelation) &&
		corrMacro.Greater(r.thresholds.MinCorrelation)
	return b.done(pass), nil
}

// robustness reruns the micro model with perturbed parameters.
func (e *Engine) robustness(ctx context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	params := calibration.Perturb(r.params, r.perturb, r.thresholds.PerturbFraction, r.seeds.PerturbationDraw)
	alt, err := e.runMicro(ctx, r, r.evalSpec(params, r.setup.Forcing, r.seeds.Perturbed, PurposePerturbed))
	if err != nil {
		return model.Criterion{}, err
	}
	altVal := tail(alt.Aggregate, r.split)

	meanShift := b.record("mean_shift", absDiff(metrics.Mean(altVal), metrics.Mean(r.microVal)))
	varShift := b.record("var_shift", absDiff(metrics.Variance(altVal), metrics.Variance(r.microVal)))
	pass := meanShift.Less(r.thresholds.MaxMeanShift) && varShift.Less(r.thresholds.MaxVarianceShift)
	return b.done(pass), nil
}

// replication compares the windowed variance of an independent rerun.
func (e *Engine) replication(ctx context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	alt, err := e.runMicro(ctx, r, r.evalSpec(r.params, r.setup.Forcing, r.seeds.Replication, PurposeReplication))
	if err != nil {
		return model.Criterion{}, err
	}
	w := r.thresholds.PersistenceWindow
	base := b.record("window_var_base", metrics.WindowVariance(r.microVal, w))
	rep := b.record("window_var_replica", metrics.WindowVariance(tail(alt.Aggregate, r.split), w))
	diff := b.record("difference", absDiff(base, rep))
	return b.done(diff.Less(r.thresholds.ReplicationTolerance)), nil
}

// validity checks that raising the forcing raises the validation-window mean.
func (e *Engine) validity(ctx context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	shifted := forcing.Offset(r.setup.Forcing, r.thresholds.ForcingOffset)
	alt, err := e.runMicro(ctx, r, r.evalSpec(r.params, shifted, r.seeds.Validity, PurposeValidity))
	if err != nil {
		return model.Criterion{}, err
	}
	base := b.record("mean_base", metrics.Mean(r.microVal))
	raised := b.record("mean_offset", metrics.Mean(tail(alt.Aggregate, r.split)))
	b.set("offset", r.thresholds.ForcingOffset)

	x, ok1 := base.Float()
	y, ok2 := raised.Float()
	return b.done(ok1 && ok2 && y > x), nil
}

// uncertainty runs a perturbed ensemble and bounds the spread of its means.
func (e *Engine) uncertainty(ctx context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	means := make([]metrics.Value, 0, r.thresholds.EnsembleSize)
	for i := 0; i < r.thresholds.EnsembleSize; i++ {
		params := calibration.Perturb(r.params, r.perturb, r.thresholds.PerturbFraction, r.seeds.EnsemblePerturbation+int64(i))
		member, err := e.runMicro(ctx, r, r.evalSpec(params, r.setup.Forcing, r.seeds.EnsembleRun+int64(i), PurposeEnsemble))
		if err != nil {
			return model.Criterion{}, err
		}
		means = append(means, metrics.Mean(tail(member.Aggregate, r.split)))
	}
	spread := b.record("spread", metrics.Spread(means))
	b.set("members", float64(len(means)))
	return b.done(spread.Less(r.thresholds.MaxEnsembleSpread)), nil
}

// symploke requires neighbour cohesion to exceed forcing cohesion.
func (e *Engine) symploke(_ context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	internal, external := metrics.Cohesion(r.micro.Panel, r.setup.Forcing[:r.horizon])
	in := b.record("internal", internal)
	ex := b.record("external", external)
	x, ok1 := in.Float()
	y, ok2 := ex.Float()
	return b.done(ok1 && ok2 && x > y), nil
}

func (e *Engine) nonLocality(_ context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	share := b.record("dominance", metrics.DominanceShare(r.micro.Panel.Series))
	b.set("units", float64(r.micro.Panel.Units()))
	return b.done(share.Less(r.thresholds.MaxDominance)), nil
}

// persistence bounds the simulated windowed variance by the observed one.
func (e *Engine) persistence(_ context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	w := r.thresholds.PersistenceWindow
	sim := b.record("window_var_sim", metrics.WindowVariance(tail(r.scenario.Observe(r.micro.Aggregate), r.split), w))
	obs := b.record("window_var_obs", metrics.WindowVariance(r.obsVal, w))
	x, ok1 := sim.Float()
	y, ok2 := obs.Float()
	return b.done(ok1 && ok2 && x <= r.thresholds.PersistenceFactor*y), nil
}

// emergence requires the coupled model to beat the reduced one by a margin.
// rmse_reduced_full is the validation-window distance between the reduced
// and the coupled run.
func (e *Engine) emergence(_ context.Context, r *run) (model.Criterion, error) {
	b := newCriterion()
	microObs := tail(r.scenario.Observe(r.micro.Aggregate), r.split)
	reducedObs := tail(r.scenario.Observe(r.reduced.Aggregate), r.split)
	full := b.record("rmse_micro", metrics.RMSE(microObs, r.obsVal))
	reduced := b.record("rmse_reduced", metrics.RMSE(reducedObs, r.obsVal))
	margin := b.record("margin", scaled(r.obsStd, r.thresholds.EmergenceFactor))
	b.record("rmse_reduced_full", metrics.RMSE(reducedObs, microObs))

	x, ok1 := full.Float()
	y, ok2 := reduced.Float()
	m, ok3 := margin.Float()
	return b.done(ok1 && ok2 && ok3 && y-x > m), nil
}
