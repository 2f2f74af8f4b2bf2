package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scalebridge/internal/config"
	"scalebridge/internal/model"
	sbapi "scalebridge/pkg/scalebridge"
)

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().String("scenario", "", "Scenario name: climate, defi or logistics (required)")
	cmd.Flags().String("observations", "", "Observation CSV file with a header row")
	cmd.Flags().String("date-column", "", "Date column header (default \"date\")")
	cmd.Flags().String("value-column", "", "Value column header (default: last non-empty field)")
	cmd.Flags().String("split", "", "First validation date, YYYY-MM-DD")
	cmd.Flags().Bool("synthetic", false, "Use the scenario's generated observation series")
	cmd.Flags().Int64("synthetic-seed", 42, "Seed of the generated observation series")
	cmd.Flags().StringArray("param", nil, "Parameter override name=value (repeatable)")
}

// dataRequest layers data flags over the scenario's config entry.
func dataRequest(cmd *cobra.Command, sc config.ScenarioConfig) sbapi.DataRequest {
	req := sbapi.DataRequest{
		Observations: sc.Observations,
		DateColumn:   sc.DateColumn,
		ValueColumn:  sc.ValueColumn,
		Split:        sc.Split,
	}
	flags := cmd.Flags()
	if flags.Changed("observations") {
		req.Observations, _ = flags.GetString("observations")
	}
	if flags.Changed("date-column") {
		req.DateColumn, _ = flags.GetString("date-column")
	}
	if flags.Changed("value-column") {
		req.ValueColumn, _ = flags.GetString("value-column")
	}
	if flags.Changed("split") {
		req.Split, _ = flags.GetString("split")
	}
	req.Synthetic, _ = flags.GetBool("synthetic")
	req.SyntheticSeed, _ = flags.GetInt64("synthetic-seed")
	if req.Synthetic && !flags.Changed("observations") {
		req.Observations = ""
	}
	return req
}

func requiredScenario(cmd *cobra.Command) (string, error) {
	name, _ := cmd.Flags().GetString("scenario")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("--scenario is required")
	}
	return name, nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Calibrate a scenario and run the validation battery",
		Long: `Calibrate a scenario's micro model on the training window, then evaluate
every criterion on the validation window. The result is stored and, when an
artifacts directory is configured, written to <artifacts-dir>/<run-id>.

Examples:
  scalebridgectl validate --scenario defi --synthetic
  scalebridgectl validate --scenario climate --observations gistemp.csv --split 2011-01-01
  scalebridgectl validate --scenario logistics --synthetic --param delay=5 --threshold max_dominance=0.7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := requiredScenario(cmd)
			if err != nil {
				return err
			}
			paramPairs, _ := cmd.Flags().GetStringArray("param")
			params, err := parseAssignments(paramPairs)
			if err != nil {
				return err
			}
			thresholdPairs, _ := cmd.Flags().GetStringArray("threshold")
			thresholds, err := parseAssignments(thresholdPairs)
			if err != nil {
				return err
			}
			workers, _ := cmd.Flags().GetInt("workers")

			return withSession(cmd, func(s *session) error {
				sc := s.cfg.Scenario(name)
				summary, err := s.client.Validate(cmd.Context(), sbapi.ValidateRequest{
					Scenario:   name,
					Data:       dataRequest(cmd, sc),
					Params:     mergeFloats(sc.Params, params),
					Thresholds: mergeFloats(sc.Thresholds, thresholds),
					Workers:    workers,
				})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), summary.Result)
				}
				printResult(cmd.OutOrStdout(), summary.Result)
				if summary.ArtifactsDir != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "artifacts: %s\n", summary.ArtifactsDir)
				}
				return nil
			})
		},
	}
	addDataFlags(cmd)
	cmd.Flags().StringArray("threshold", nil, "Threshold override name=value (repeatable)")
	cmd.Flags().Int("workers", 0, "Concurrent calibration candidates (default from config)")
	return cmd
}

func printResult(w io.Writer, r model.ValidationResult) {
	fmt.Fprintf(w, "run_id=%s scenario=%s created_at=%s\n", r.RunID, r.Scenario, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "data: %s..%s split=%s train=%d validation=%d\n",
		r.Data.Start, r.Data.End, r.Data.Split, r.Data.TrainSteps, r.Data.ValidationSize)
	fmt.Fprintf(w, "calibration: best_score=%g macro_fit=%t micro=%s candidates=%d\n",
		r.Calibration.BestScore, r.Calibration.MacroFit, formatParams(r.Calibration.Micro), len(r.Calibration.Candidates))
	for _, name := range model.CriterionOrder {
		c, ok := r.Criteria[name]
		if !ok {
			continue
		}
		status := "FAIL"
		if c.Pass {
			status = "PASS"
		}
		fmt.Fprintf(w, "  %-16s %s %s", name, status, formatMetrics(c.Metrics))
		if len(c.Undefined) > 0 {
			fmt.Fprintf(w, " undefined=%s", strings.Join(c.Undefined, ","))
		}
		fmt.Fprintln(w)
	}
	if len(r.Extras) > 0 {
		fmt.Fprintf(w, "extras: %s\n", formatMetrics(r.Extras))
	}
	overall := "FAIL"
	if r.OverallPass {
		overall = "PASS"
	}
	fmt.Fprintf(w, "overall: %s\n", overall)
}

func formatParams(p model.ParameterSet) string {
	return formatMetrics(p.Map())
}

func formatMetrics(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4g", k, m[k]))
	}
	return strings.Join(parts, " ")
}
