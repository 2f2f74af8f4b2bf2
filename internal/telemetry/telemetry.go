// Package telemetry exposes Prometheus counters for simulation runs,
// calibration candidates and validation outcomes. Recorders own their
// registry and can be exported to a node-exporter textfile.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scalebridge/internal/model"
)

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Simulations        *prometheus.CounterVec
	Candidates         *prometheus.CounterVec
	Evaluations        *prometheus.CounterVec
	Criteria           *prometheus.GaugeVec
	EvaluationDuration *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		Simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalebridge",
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total simulator runs by scale and purpose",
		}, []string{"scenario", "scale", "purpose"}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalebridge",
			Subsystem: "calibration",
			Name:      "candidates_total",
			Help:      "Total calibration candidates evaluated",
		}, []string{"scenario", "outcome"}),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalebridge",
			Subsystem: "validation",
			Name:      "evaluations_total",
			Help:      "Total validation passes by overall outcome",
		}, []string{"scenario", "outcome"}),
		Criteria: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scalebridge",
			Subsystem: "validation",
			Name:      "criterion_pass",
			Help:      "Outcome of the most recent evaluation per criterion (1 pass, 0 fail)",
		}, []string{"scenario", "criterion"}),
		EvaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scalebridge",
			Subsystem: "validation",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one validation pass",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"scenario"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveSimulation(scenario, scale, purpose string) {
	if r == nil {
		return
	}
	r.Simulations.WithLabelValues(scenario, scale, purpose).Inc()
}

func (r *Recorder) ObserveCandidates(scenario string, valid, invalid int) {
	if r == nil {
		return
	}
	r.Candidates.WithLabelValues(scenario, "valid").Add(float64(valid))
	r.Candidates.WithLabelValues(scenario, "invalid").Add(float64(invalid))
}

func (r *Recorder) ObserveResult(result model.ValidationResult, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "fail"
	if result.OverallPass {
		outcome = "pass"
	}
	r.Evaluations.WithLabelValues(result.Scenario, outcome).Inc()
	for name, c := range result.Criteria {
		v := 0.0
		if c.Pass {
			v = 1
		}
		r.Criteria.WithLabelValues(result.Scenario, name).Set(v)
	}
	r.EvaluationDuration.WithLabelValues(result.Scenario).Observe(elapsed.Seconds())
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
