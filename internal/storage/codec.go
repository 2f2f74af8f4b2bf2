package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"scalebridge/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// stamp fills an unset version header with the current versions.
func stamp(v *model.VersionedRecord) {
	if v.SchemaVersion == 0 && v.CodecVersion == 0 {
		v.SchemaVersion = CurrentSchemaVersion
		v.CodecVersion = CurrentCodecVersion
	}
}

func EncodeResult(r model.ValidationResult) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeResult(data []byte) (model.ValidationResult, error) {
	var result model.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return model.ValidationResult{}, err
	}
	if err := checkVersion(result.VersionedRecord); err != nil {
		return model.ValidationResult{}, err
	}
	return result, nil
}

func EncodeTrajectory(t model.Trajectory) ([]byte, error) {
	stamp(&t.VersionedRecord)
	return json.Marshal(t)
}

func DecodeTrajectory(data []byte) (model.Trajectory, error) {
	var trajectory model.Trajectory
	if err := json.Unmarshal(data, &trajectory); err != nil {
		return model.Trajectory{}, err
	}
	if err := checkVersion(trajectory.VersionedRecord); err != nil {
		return model.Trajectory{}, err
	}
	return trajectory, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}

func sortSummaries(summaries []model.RunSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].RunID < summaries[j].RunID
	})
}
