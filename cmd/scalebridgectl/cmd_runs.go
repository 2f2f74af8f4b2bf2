package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	sbapi "scalebridge/pkg/scalebridge"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List validation runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName, _ := cmd.Flags().GetString("scenario")
			limit, _ := cmd.Flags().GetInt("limit")
			return withSession(cmd, func(s *session) error {
				runs, err := s.client.Runs(cmd.Context(), sbapi.RunsRequest{Scenario: scenarioName, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				w := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(w, "no runs")
					return nil
				}
				for _, r := range runs {
					status := "PASS"
					if !r.OverallPass {
						status = "FAIL"
					}
					line := fmt.Sprintf("%s %-9s %s %s", r.RunID, r.Scenario, r.CreatedAt.UTC().Format(time.RFC3339), status)
					if len(r.Failed) > 0 {
						line += " failed=" + strings.Join(r.Failed, ",")
					}
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("scenario", "", "Only list runs of this scenario")
	cmd.Flags().Int("limit", 20, "Maximum number of runs")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored validation result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, _ := cmd.Flags().GetBool("latest")
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			return withSession(cmd, func(s *session) error {
				result, err := s.client.Show(cmd.Context(), sbapi.ShowRequest{RunID: runID, Latest: latest})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().Bool("latest", false, "Show the most recent run")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")
			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			return withSession(cmd, func(s *session) error {
				exported, err := s.client.Export(cmd.Context(), sbapi.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"run_id": exported.RunID, "directory": exported.Directory})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
				return nil
			})
		},
	}
	cmd.Flags().Bool("latest", false, "Export the most recent run")
	cmd.Flags().String("out", "", "Export directory (default \"exports\")")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate pass rates over the runs in the artifacts directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName, _ := cmd.Flags().GetString("scenario")
			return withSession(cmd, func(s *session) error {
				summary, err := s.client.Report(cmd.Context(), scenarioName)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), summary.Report)
				}
				r := summary.Report
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "runs=%d passed=%d pass_rate=%.2f best_score mean=%.4g std=%.4g\n",
					r.TotalRuns, r.PassRuns, r.PassRate, r.AvgBestScore, r.StdBestScore)
				names := make([]string, 0, len(r.Criteria))
				for name := range r.Criteria {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					c := r.Criteria[name]
					fmt.Fprintf(w, "  %-16s %d/%d\n", name, c.Passes, c.Runs)
				}
				fmt.Fprintf(w, "report: %s\n", summary.Path)
				return nil
			})
		},
	}
	cmd.Flags().String("scenario", "", "Only aggregate runs of this scenario")
	return cmd
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List scenarios with their default parameters and thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				infos, err := s.client.Scenarios()
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), infos)
				}
				w := cmd.OutOrStdout()
				for _, info := range infos {
					fmt.Fprintf(w, "%s\n  params: %s\n", info.Name, formatMetrics(info.Params))
					th := info.Thresholds
					fmt.Fprintf(w, "  thresholds: rmse_std_factor=%g min_correlation=%g max_dominance=%g ensemble_size=%d\n",
						th.RMSEStdFactor, th.MinCorrelation, th.MaxDominance, th.EnsembleSize)
				}
				return nil
			})
		},
	}
}
