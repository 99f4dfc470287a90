// Package config holds all enerloop configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"enerloop/internal/pipeline"
)

// Config is the full pipeline configuration.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Convergence ConvergenceConfig `yaml:"convergence"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Batch       BatchConfig       `yaml:"batch"`
}

// EngineConfig locates the external simulation engine.
type EngineConfig struct {
	Binary  string `yaml:"binary"`
	Timeout string `yaml:"timeout"` // hard per-run timeout, e.g. "20m"
}

// TimeoutDuration parses the configured timeout.
func (e EngineConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid engine timeout %q: %w", e.Timeout, err)
	}
	return d, nil
}

// ConvergenceConfig tunes the sizing-feedback loop.
type ConvergenceConfig struct {
	MaxAttempts           int     `yaml:"max_attempts"`
	Tolerance             float64 `yaml:"tolerance"`
	SafetyMargin          float64 `yaml:"safety_margin"`
	MaxFraction           float64 `yaml:"max_fraction"`
	MinFraction           float64 `yaml:"min_fraction"`
	InitialDesignFraction float64 `yaml:"initial_design_fraction"`
	TargetFlowPerCapacity float64 `yaml:"target_flow_per_capacity"`
}

// Options converts the section into loop options.
func (c ConvergenceConfig) Options() pipeline.Options {
	return pipeline.Options{
		MaxAttempts:           c.MaxAttempts,
		Tolerance:             c.Tolerance,
		SafetyMargin:          c.SafetyMargin,
		MaxFraction:           c.MaxFraction,
		MinFraction:           c.MinFraction,
		InitialDesignFraction: c.InitialDesignFraction,
		TargetFlowPerCapacity: c.TargetFlowPerCapacity,
	}
}

// LedgerConfig locates the run-history database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig bounds concurrent model processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns the tuning the pipeline ships with.
func DefaultConfig() *Config {
	opts := pipeline.DefaultOptions()
	return &Config{
		Engine: EngineConfig{
			Binary:  "energyplus",
			Timeout: "20m",
		},
		Convergence: ConvergenceConfig{
			MaxAttempts:           opts.MaxAttempts,
			Tolerance:             opts.Tolerance,
			SafetyMargin:          opts.SafetyMargin,
			MaxFraction:           opts.MaxFraction,
			MinFraction:           opts.MinFraction,
			InitialDesignFraction: opts.InitialDesignFraction,
			TargetFlowPerCapacity: opts.TargetFlowPerCapacity,
		},
		Ledger: LedgerConfig{
			Path: "enerloop.db",
		},
		Batch: BatchConfig{
			Concurrency: 4,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("ENERLOOP_ENGINE_BINARY"); bin != "" {
		c.Engine.Binary = bin
	}
	if timeout := os.Getenv("ENERLOOP_ENGINE_TIMEOUT"); timeout != "" {
		c.Engine.Timeout = timeout
	}
	if path := os.Getenv("ENERLOOP_LEDGER_PATH"); path != "" {
		c.Ledger.Path = path
	}
}
