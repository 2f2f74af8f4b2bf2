// Package config loads scalebridge settings from defaults, an optional YAML
// file and SCALEBRIDGE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"scalebridge/internal/logging"
	"scalebridge/internal/observation"
	"scalebridge/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. SCALEBRIDGE_LOGGING_LEVEL.
const EnvPrefix = "SCALEBRIDGE"

// Config contains all scalebridge settings.
type Config struct {
	// Logging controls the slog handler used by the CLI and the engine.
	Logging LoggingConfig `json:"logging" yaml:"logging" envconfig:"LOGGING"`

	// Store selects where validation results are persisted.
	Store StoreConfig `json:"store" yaml:"store" envconfig:"STORE"`

	// Output controls run artifacts and metrics export.
	Output OutputConfig `json:"output" yaml:"output" envconfig:"OUTPUT"`

	// Validation tunes the engine independently of any scenario.
	Validation ValidationConfig `json:"validation" yaml:"validation" envconfig:"VALIDATION"`

	// Scenarios holds per-scenario inputs and overrides, keyed by scenario name.
	// Only the YAML file can set it.
	Scenarios map[string]ScenarioConfig `json:"scenarios,omitempty" yaml:"scenarios,omitempty" ignored:"true"`
}

type LoggingConfig struct {
	// Level is one of "trace", "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level" envconfig:"LEVEL"`
}

type StoreConfig struct {
	// Kind is "memory" (default) or "sqlite". The sqlite backend requires
	// building with -tags sqlite.
	Kind string `json:"kind" yaml:"kind" envconfig:"KIND"`

	// DBPath is the sqlite database file.
	DBPath string `json:"db_path" yaml:"db_path" envconfig:"DB_PATH"`
}

type OutputConfig struct {
	// ArtifactsDir receives one directory per validation run plus the run
	// index. Empty disables artifact output.
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" envconfig:"ARTIFACTS_DIR"`

	// MetricsFile receives Prometheus text-format metrics after each
	// command. Empty disables the export.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" envconfig:"METRICS_FILE"`
}

type ValidationConfig struct {
	// Workers bounds concurrent calibration candidates.
	Workers int `json:"workers" yaml:"workers" envconfig:"WORKERS"`

	// MinLength is the shortest usable observation series.
	MinLength int `json:"min_length" yaml:"min_length" envconfig:"MIN_LENGTH"`
}

// ScenarioConfig describes the observation input and overrides for one
// scenario.
type ScenarioConfig struct {
	// Observations is a CSV file with a header row.
	Observations string `json:"observations,omitempty" yaml:"observations,omitempty"`

	// DateColumn defaults to "date".
	DateColumn string `json:"date_column,omitempty" yaml:"date_column,omitempty"`

	// ValueColumn defaults to the last non-empty field of each row.
	ValueColumn string `json:"value_column,omitempty" yaml:"value_column,omitempty"`

	// Split is the first validation date (YYYY-MM-DD).
	Split string `json:"split,omitempty" yaml:"split,omitempty"`

	// Params overrides scenario parameters by name.
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`

	// Thresholds overrides criterion thresholds by name.
	Thresholds map[string]float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Kind:   storage.KindMemory,
			DBPath: "scalebridge.db",
		},
		Output: OutputConfig{
			ArtifactsDir: "scalebridge-runs",
		},
		Validation: ValidationConfig{
			Workers:   4,
			MinLength: observation.DefaultMinLength,
		},
	}
}

// Load builds the configuration. Order: defaults -> path (if non-empty) ->
// environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileConfig
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Scenario returns the settings for name, or the zero value.
func (c *Config) Scenario(name string) ScenarioConfig {
	if c == nil || c.Scenarios == nil {
		return ScenarioConfig{}
	}
	return c.Scenarios[name]
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", c.Logging.Level)
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Kind)) {
	case "", storage.KindMemory:
	case storage.KindSQLite:
		if strings.TrimSpace(c.Store.DBPath) == "" {
			return fmt.Errorf("store db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid store kind: %s (valid: %s)", c.Store.Kind, strings.Join(storage.Kinds(), ", "))
	}

	if c.Validation.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Validation.Workers)
	}
	if c.Validation.MinLength < 2 {
		return fmt.Errorf("min_length must be at least 2, got %d", c.Validation.MinLength)
	}

	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc := c.Scenarios[name]
		if sc.Split != "" {
			if _, err := observation.ParseDate(sc.Split); err != nil {
				return fmt.Errorf("scenario %s: invalid split date %q: %w", name, sc.Split, err)
			}
		}
	}

	return nil
}
