package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scalebridge/internal/config"
	"scalebridge/internal/logging"
	sbapi "scalebridge/pkg/scalebridge"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scalebridgectl",
		Short: "Multiscale simulation calibration and validation",
		Long: `scalebridgectl calibrates coupled micro and macro simulators against an
observed series and runs the validation battery (convergence, robustness,
replication, validity, uncertainty and the structural indicators).

Settings come from defaults, then --config, then SCALEBRIDGE_* environment
variables, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("store", "", "Result store backend: memory or sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "sqlite database path")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "Directory for run artifacts and the run index")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus text metrics to this file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newScenariosCmd(),
		newValidateCmd(),
		newSimulateCmd(),
		newRunsCmd(),
		newShowCmd(),
		newExportCmd(),
		newReportCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scalebridgectl version %s\n", version)
			return nil
		},
	}
}

// session is the per-command configuration, logger and client.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	client *sbapi.Client
}

// openSession resolves settings in precedence order and opens a client.
func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("store") {
		cfg.Store.Kind, _ = flags.GetString("store")
	}
	if flags.Changed("db-path") {
		cfg.Store.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("artifacts-dir") {
		cfg.Output.ArtifactsDir, _ = flags.GetString("artifacts-dir")
	}
	if flags.Changed("metrics-file") {
		cfg.Output.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	client, err := sbapi.New(sbapi.Options{
		StoreKind:    cfg.Store.Kind,
		DBPath:       cfg.Store.DBPath,
		ArtifactsDir: cfg.Output.ArtifactsDir,
		Workers:      cfg.Validation.Workers,
		MinLength:    cfg.Validation.MinLength,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

// Close exports metrics when configured and releases the store.
func (s *session) Close() error {
	metricsErr := s.client.WriteMetrics(s.cfg.Output.MetricsFile)
	if err := s.client.Close(); err != nil {
		return err
	}
	if metricsErr != nil {
		return fmt.Errorf("write metrics: %w", metricsErr)
	}
	return nil
}

// withSession runs fn with an open session and closes it afterwards.
func withSession(cmd *cobra.Command, fn func(*session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// parseAssignments turns repeated name=value flags into a map.
func parseAssignments(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q (want name=value)", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// mergeFloats layers override on top of base without touching either.
func mergeFloats(base, override map[string]float64) map[string]float64 {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
