package model

import (
	"encoding/json"
	"sort"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ParameterSet is an immutable mapping of named numeric knobs for one run.
// Every mutating helper returns a new set.
type ParameterSet struct {
	values map[string]float64
}

func NewParameterSet(values map[string]float64) ParameterSet {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return ParameterSet{values: out}
}

func (p ParameterSet) Get(name string) (float64, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Float returns the named value or def when the name is unset.
func (p ParameterSet) Float(name string, def float64) float64 {
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

// Int returns the named value truncated to an int, or def when unset.
func (p ParameterSet) Int(name string, def int) int {
	if v, ok := p.values[name]; ok {
		return int(v)
	}
	return def
}

func (p ParameterSet) With(name string, value float64) ParameterSet {
	out := p.Map()
	out[name] = value
	return ParameterSet{values: out}
}

// Merge returns a copy of p overlaid with every value in other.
func (p ParameterSet) Merge(other ParameterSet) ParameterSet {
	out := p.Map()
	for k, v := range other.values {
		out[k] = v
	}
	return ParameterSet{values: out}
}

func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (p ParameterSet) Len() int {
	return len(p.values)
}

// Map returns a copy of the underlying values.
func (p ParameterSet) Map() map[string]float64 {
	out := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func (p ParameterSet) MarshalJSON() ([]byte, error) {
	if p.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.values)
}

func (p *ParameterSet) UnmarshalJSON(data []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*p = NewParameterSet(values)
	return nil
}

// Criterion is one entry of the validation battery.
type Criterion struct {
	Pass    bool               `json:"pass"`
	Metrics map[string]float64 `json:"metrics"`
	// Undefined lists metric names that could not be computed.
	Undefined []string `json:"undefined,omitempty"`
}

type CandidateScore struct {
	Index  int          `json:"index"`
	Params ParameterSet `json:"params"`
	Score  float64      `json:"score"`
	Valid  bool         `json:"valid"`
}

type CalibrationRecord struct {
	Macro      ParameterSet     `json:"macro"`
	Micro      ParameterSet     `json:"micro"`
	MacroFit   bool             `json:"macro_fit"`
	BestScore  float64          `json:"best_score"`
	Candidates []CandidateScore `json:"candidates,omitempty"`
}

type DataSummary struct {
	Start          string  `json:"start,omitempty"`
	End            string  `json:"end,omitempty"`
	Split          string  `json:"split,omitempty"`
	Steps          int     `json:"steps"`
	TrainSteps     int     `json:"train_steps"`
	ValidationSize int     `json:"val_steps"`
	ObsMean        float64 `json:"obs_mean"`
}

// Criterion names of the fixed validation battery.
const (
	CriterionConvergence = "c1_convergence"
	CriterionRobustness  = "c2_robustness"
	CriterionReplication = "c3_replication"
	CriterionValidity    = "c4_validity"
	CriterionUncertainty = "c5_uncertainty"
	IndicatorSymploke    = "symploke"
	IndicatorNonLocality = "non_locality"
	IndicatorPersistence = "persistence"
	IndicatorEmergence   = "emergence"
)

// CriterionOrder lists the battery in reporting order.
var CriterionOrder = []string{
	CriterionConvergence,
	CriterionRobustness,
	CriterionReplication,
	CriterionValidity,
	CriterionUncertainty,
	IndicatorSymploke,
	IndicatorNonLocality,
	IndicatorPersistence,
	IndicatorEmergence,
}

// ValidationResult is the output of one evaluation pass.
type ValidationResult struct {
	VersionedRecord
	RunID       string               `json:"run_id"`
	Scenario    string               `json:"scenario"`
	CreatedAt   time.Time            `json:"created_at"`
	Data        DataSummary          `json:"data"`
	Params      ParameterSet         `json:"params"`
	Calibration CalibrationRecord    `json:"calibration"`
	Criteria    map[string]Criterion `json:"criteria"`
	Extras      map[string]float64   `json:"extras,omitempty"`
	OverallPass bool                 `json:"overall_pass"`
}

// Failed returns the names of criteria that did not pass, in battery order.
func (r ValidationResult) Failed() []string {
	var out []string
	for _, name := range CriterionOrder {
		c, ok := r.Criteria[name]
		if ok && !c.Pass {
			out = append(out, name)
		}
	}
	return out
}

// RunSummary is the listing view of a stored validation result.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Scenario    string    `json:"scenario"`
	CreatedAt   time.Time `json:"created_at"`
	OverallPass bool      `json:"overall_pass"`
	Failed      []string  `json:"failed,omitempty"`
}

func (r ValidationResult) Summary() RunSummary {
	return RunSummary{
		RunID:       r.RunID,
		Scenario:    r.Scenario,
		CreatedAt:   r.CreatedAt,
		OverallPass: r.OverallPass,
		Failed:      r.Failed(),
	}
}

// Trajectory is one stored simulator output.
type Trajectory struct {
	VersionedRecord
	ID        string       `json:"id"`
	Scenario  string       `json:"scenario"`
	Scale     string       `json:"scale"`
	Seed      int64        `json:"seed"`
	CreatedAt time.Time    `json:"created_at"`
	Params    ParameterSet `json:"params"`
	Values    []float64    `json:"values"`
	Bridge    []float64    `json:"bridge,omitempty"`
}
