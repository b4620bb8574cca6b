// Package config provides configuration loading for seisflow.
// Priority: defaults < user config < project config < explicit file < flags.
// The loaded value is threaded explicitly through every component call;
// nothing reads ambient global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all seisflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Tolerances TolerancesConfig `yaml:"tolerances"`
	Prune      PruneConfig      `yaml:"prune"`
	Output     OutputConfig     `yaml:"output"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	S3         S3Config         `yaml:"s3"`
}

// TolerancesConfig controls boundary arithmetic.
type TolerancesConfig struct {
	// TimeSeconds widens every boundary comparison. Negative means
	// automatic: half the sample period of the segment under test.
	TimeSeconds float64 `yaml:"time_seconds"`

	// Rate is the maximum relative sample-rate difference for two
	// segments to be comparable.
	Rate float64 `yaml:"rate"`
}

// PruneConfig controls overlap resolution.
type PruneConfig struct {
	Mode     string `yaml:"mode"`     // record | sample | edges
	Priority string `yaml:"priority"` // best | equal

	// StartTime and EndTime bound the run globally (RFC3339). In edges
	// mode they are the only clipping applied.
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

// OutputConfig controls the single-file sink and reporting.
type OutputConfig struct {
	Path      string `yaml:"path"`
	Append    bool   `yaml:"append"`
	Quality   string `yaml:"quality"` // rewrite code, empty = keep
	Summary   bool   `yaml:"summary"`
	Report    string `yaml:"report"` // parquet report path
	Selection string `yaml:"selection"`
}

// ArchiveConfig controls the archive streaming engine.
type ArchiveConfig struct {
	Template    string        `yaml:"template"`
	Budget      int           `yaml:"budget"`
	Margin      int           `yaml:"margin"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Endpoint string  `yaml:"endpoint"`
	Insecure bool    `yaml:"insecure"`
	Sampling float64 `yaml:"sampling"`
}

// S3Config for s3:// input prefetch.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"path_style"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Tolerances: TolerancesConfig{
			TimeSeconds: -1,
			Rate:        1e-4,
		},
		Prune: PruneConfig{
			Mode:     "sample",
			Priority: "best",
		},
		Archive: ArchiveConfig{
			Budget:      50,
			Margin:      5,
			IdleTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
			Sampling: 1.0,
		},
	}
}

// Load builds the configuration from defaults, the standard config file
// locations, and an optional explicit file (highest priority).
func Load(explicit string) (*Config, error) {
	cfg := Default()

	for _, path := range configPaths() {
		if err := loadFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if explicit != "" {
		if err := loadFile(cfg, explicit); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// configPaths returns the standard config file paths in priority order.
func configPaths() []string {
	var paths []string
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/seisflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".seisflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".seisflow.yaml"))
	}
	return paths
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.Prune.Mode {
	case "record", "sample", "edges":
	default:
		return fmt.Errorf("invalid prune mode %q (want record, sample, or edges)", c.Prune.Mode)
	}
	switch c.Prune.Priority {
	case "best", "equal":
	default:
		return fmt.Errorf("invalid priority mode %q (want best or equal)", c.Prune.Priority)
	}
	if q := c.Output.Quality; q != "" {
		if len(q) != 1 {
			return fmt.Errorf("invalid quality code %q", q)
		}
		switch q[0] {
		case 'R', 'D', 'Q', 'M':
		default:
			return fmt.Errorf("invalid quality code %q (want R, D, Q, or M)", q)
		}
	}
	if c.Archive.Budget < 0 || c.Archive.Margin < 0 {
		return fmt.Errorf("archive budget and margin must be non-negative")
	}
	return nil
}
