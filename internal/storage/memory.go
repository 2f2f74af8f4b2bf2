package storage

import (
	"context"
	"errors"
	"sync"

	"scalebridge/internal/model"
)

// MemoryStore keeps encoded payloads so callers never share maps or slices
// with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	initialized  bool
	results      map[string][]byte
	summaries    map[string]model.RunSummary
	trajectories map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.results = make(map[string][]byte)
	s.summaries = make(map[string]model.RunSummary)
	s.trajectories = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, result model.ValidationResult) error {
	if result.RunID == "" {
		return errors.New("result run id is required")
	}
	payload, err := EncodeResult(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.results[result.RunID] = payload
	s.summaries[result.RunID] = result.Summary()
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, runID string) (model.ValidationResult, bool, error) {
	s.mu.RLock()
	payload, ok := s.results[runID]
	s.mu.RUnlock()
	if !ok {
		return model.ValidationResult{}, false, nil
	}
	result, err := DecodeResult(payload)
	if err != nil {
		return model.ValidationResult{}, false, err
	}
	return result, true, nil
}

func (s *MemoryStore) ListResults(_ context.Context, scenario string) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		if scenario != "" && summary.Scenario != scenario {
			continue
		}
		summary.Failed = append([]string(nil), summary.Failed...)
		out = append(out, summary)
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) SaveTrajectory(_ context.Context, trajectory model.Trajectory) error {
	if trajectory.ID == "" {
		return errors.New("trajectory id is required")
	}
	payload, err := EncodeTrajectory(trajectory)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.trajectories[trajectory.ID] = payload
	return nil
}

func (s *MemoryStore) GetTrajectory(_ context.Context, id string) (model.Trajectory, bool, error) {
	s.mu.RLock()
	payload, ok := s.trajectories[id]
	s.mu.RUnlock()
	if !ok {
		return model.Trajectory{}, false, nil
	}
	trajectory, err := DecodeTrajectory(payload)
	if err != nil {
		return model.Trajectory{}, false, err
	}
	return trajectory, true, nil
}
