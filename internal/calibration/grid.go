// Package calibration fits scenario parameters against a training window:
// an exhaustive grid search over micro parameters and a closed-form least
// squares fit of the macro recursion.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"scalebridge/internal/metrics"
	"scalebridge/internal/model"
)

var ErrNoValidCandidate = errors.New("no valid calibration candidate")

// Axis is one free parameter with its candidate values.
type Axis struct {
	Name   string
	Values []float64
}

// Grid is an ordered list of axes. Candidates enumerate the Cartesian product
// with the first axis outermost.
type Grid []Axis

func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, a := range g {
		n *= len(a.Values)
	}
	return n
}

func (g Grid) Validate() error {
	if len(g) == 0 {
		return errors.New("calibration grid has no axes")
	}
	seen := make(map[string]struct{}, len(g))
	for _, a := range g {
		if a.Name == "" {
			return errors.New("calibration axis name is required")
		}
		if _, ok := seen[a.Name]; ok {
			return fmt.Errorf("duplicate calibration axis %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		if len(a.Values) == 0 {
			return fmt.Errorf("calibration axis %q has no values", a.Name)
		}
	}
	return nil
}

// Candidates overlays every grid point onto base, in enumeration order.
func (g Grid) Candidates(base model.ParameterSet) []model.ParameterSet {
	size := g.Size()
	out := make([]model.ParameterSet, 0, size)
	for idx := 0; idx < size; idx++ {
		values := base.Map()
		rem := idx
		for a := len(g) - 1; a >= 0; a-- {
			n := len(g[a].Values)
			values[g[a].Name] = g[a].Values[rem%n]
			rem /= n
		}
		out = append(out, model.NewParameterSet(values))
	}
	return out
}

// ScoreFunc evaluates one candidate; lower is better. An undefined score
// marks the candidate invalid. A returned error aborts the search.
type ScoreFunc func(ctx context.Context, params model.ParameterSet) (metrics.Value, error)

type Result struct {
	Best       model.ParameterSet
	BestIndex  int
	BestScore  float64
	Candidates []model.CandidateScore
}

// Invalid counts candidates whose score could not be computed.
func (r Result) Invalid() int {
	n := 0
	for _, c := range r.Candidates {
		if !c.Valid {
			n++
		}
	}
	return n
}

// GridSearch evaluates every candidate of a grid. Workers <= 1 evaluates
// sequentially.
type GridSearch struct {
	Workers int
	Logger  *slog.Logger
}

func (s GridSearch) Calibrate(ctx context.Context, grid Grid, base model.ParameterSet, score ScoreFunc) (Result, error) {
	if err := grid.Validate(); err != nil {
		return Result{}, err
	}
	if score == nil {
		return Result{}, errors.New("calibration score function is required")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	candidates := grid.Candidates(base)
	logger.InfoContext(ctx, "starting grid search",
		"candidates", len(candidates),
		"axes", len(grid),
		"workers", s.Workers,
	)

	scores := make([]metrics.Value, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	if s.Workers > 1 {
		g.SetLimit(s.Workers)
	} else {
		g.SetLimit(1)
	}
	for i, params := range candidates {
		if err := gCtx.Err(); err != nil {
			break
		}
		i, params := i, params // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			v, err := score(gCtx, params)
			if err != nil {
				return fmt.Errorf("score candidate %d: %w", i, err)
			}
			scores[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("grid search cancelled: %w", err)
	}

	result := Result{BestIndex: -1, BestScore: math.Inf(1), Candidates: make([]model.CandidateScore, len(candidates))}
	for i, v := range scores {
		cs := model.CandidateScore{Index: i, Params: candidates[i]}
		if f, ok := v.Float(); ok {
			cs.Score, cs.Valid = f, true
			if f < result.BestScore {
				result.BestIndex, result.BestScore = i, f
			}
		} else {
			logger.DebugContext(ctx, "invalid calibration candidate", "index", i)
		}
		result.Candidates[i] = cs
	}
	if result.BestIndex < 0 {
		return Result{}, fmt.Errorf("%w: %d candidates evaluated", ErrNoValidCandidate, len(candidates))
	}
	result.Best = candidates[result.BestIndex]

	logger.InfoContext(ctx, "grid search completed",
		"evaluated", len(candidates),
		"invalid", result.Invalid(),
		"best_index", result.BestIndex,
		"best_score", result.BestScore,
	)
	return result, nil
}
