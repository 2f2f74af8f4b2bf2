package storage

import (
	"context"

	"scalebridge/internal/model"
)

// Store persists validation results and simulated trajectories.
type Store interface {
	Init(ctx context.Context) error
	SaveResult(ctx context.Context, result model.ValidationResult) error
	GetResult(ctx context.Context, runID string) (model.ValidationResult, bool, error)
	// ListResults returns summaries newest first; an empty scenario lists all.
	ListResults(ctx context.Context, scenario string) ([]model.RunSummary, error)
	SaveTrajectory(ctx context.Context, trajectory model.Trajectory) error
	GetTrajectory(ctx context.Context, id string) (model.Trajectory, bool, error)
}
