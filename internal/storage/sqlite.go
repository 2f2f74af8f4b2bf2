//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"scalebridge/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, result model.ValidationResult) error {
	if result.RunID == "" {
		return errors.New("result run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeResult(result)
	if err != nil {
		return err
	}
	failed, err := json.Marshal(result.Failed())
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO results (run_id, scenario, created_at, overall_pass, failed, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			scenario = excluded.scenario,
			created_at = excluded.created_at,
			overall_pass = excluded.overall_pass,
			failed = excluded.failed,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, result.RunID, result.Scenario, result.CreatedAt.UTC().Format(time.RFC3339Nano), result.OverallPass, string(failed),
		CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetResult(ctx context.Context, runID string) (model.ValidationResult, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ValidationResult{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM results WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ValidationResult{}, false, nil
		}
		return model.ValidationResult{}, false, err
	}

	result, err := DecodeResult(payload)
	if err != nil {
		return model.ValidationResult{}, false, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return result, true, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, scenario string) ([]model.RunSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, scenario, created_at, overall_pass, failed
		FROM results
		WHERE ? = '' OR scenario = ?
	`, scenario, scenario)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var (
			summary   model.RunSummary
			createdAt string
			failed    string
		)
		if err := rows.Scan(&summary.RunID, &summary.Scenario, &createdAt, &summary.OverallPass, &failed); err != nil {
			return nil, err
		}
		if summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", summary.RunID, err)
		}
		if err := json.Unmarshal([]byte(failed), &summary.Failed); err != nil {
			return nil, fmt.Errorf("decode failed criteria for %s: %w", summary.RunID, err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

func (s *SQLiteStore) SaveTrajectory(ctx context.Context, trajectory model.Trajectory) error {
	if trajectory.ID == "" {
		return errors.New("trajectory id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrajectory(trajectory)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO trajectories (id, scenario, scale, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scenario = excluded.scenario,
			scale = excluded.scale,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, trajectory.ID, trajectory.Scenario, trajectory.Scale, CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetTrajectory(ctx context.Context, id string) (model.Trajectory, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Trajectory{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM trajectories WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Trajectory{}, false, nil
		}
		return model.Trajectory{}, false, err
	}

	trajectory, err := DecodeTrajectory(payload)
	if err != nil {
		return model.Trajectory{}, false, fmt.Errorf("decode trajectory %s: %w", id, err)
	}
	return trajectory, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS results (
			run_id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			created_at TEXT NOT NULL,
			overall_pass INTEGER NOT NULL,
			failed TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS results_scenario ON results (scenario);
		CREATE TABLE IF NOT EXISTS trajectories (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			scale TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
