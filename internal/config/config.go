// Package config loads congresstwin configuration: a YAML file with
// defaults, validated after environment overrides are applied through viper
// (CONGRESSTWIN_ prefix, e.g. CONGRESSTWIN_DATABASE_PATH).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Locks      LocksConfig      `yaml:"locks" mapstructure:"locks"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
	Cost       CostConfig       `yaml:"cost" mapstructure:"cost"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig controls the zap setup.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// SimulationConfig carries Monte Carlo defaults.
type SimulationConfig struct {
	Iterations  int     `yaml:"iterations" mapstructure:"iterations"`
	QueueDelayK float64 `yaml:"queue_delay_k" mapstructure:"queue_delay_k"`
	Workers     int     `yaml:"workers" mapstructure:"workers"`
}

// LocksConfig controls the task lock TTL.
type LocksConfig struct {
	TTL string `yaml:"ttl" mapstructure:"ttl"`
}

// HistoryConfig selects calibration sources.
type HistoryConfig struct {
	// PlanIDs are the historical plans feeding the calibration.
	PlanIDs []string `yaml:"plan_ids" mapstructure:"plan_ids"`
	// MinSamples is the per-bucket threshold below which the global prior is
	// used.
	MinSamples int `yaml:"min_samples" mapstructure:"min_samples"`
}

// CostConfig carries the five cost-term weights.
type CostConfig struct {
	Schedule   float64 `yaml:"schedule" mapstructure:"schedule"`
	Resource   float64 `yaml:"resource" mapstructure:"resource"`
	Risk       float64 `yaml:"risk" mapstructure:"risk"`
	Quality    float64 `yaml:"quality" mapstructure:"quality"`
	Disruption float64 `yaml:"disruption" mapstructure:"disruption"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database:   DatabaseConfig{Path: "congresstwin.db"},
		Simulation: SimulationConfig{Iterations: 10000, QueueDelayK: 0.25},
		Locks:      LocksConfig{TTL: "15m"},
		History: HistoryConfig{
			PlanIDs:    []string{"congress-2022", "congress-2023", "congress-2024"},
			MinSamples: 3,
		},
		Cost: CostConfig{Schedule: 1.0, Resource: 0.8, Risk: 1.2, Quality: 0.5, Disruption: 0.3},
	}
}

// Load reads the config file (optional) over the defaults, then applies
// CONGRESSTWIN_* environment overrides and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONGRESSTWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("logging.verbose", def.Logging.Verbose)
	v.SetDefault("simulation.iterations", def.Simulation.Iterations)
	v.SetDefault("simulation.queue_delay_k", def.Simulation.QueueDelayK)
	v.SetDefault("simulation.workers", def.Simulation.Workers)
	v.SetDefault("locks.ttl", def.Locks.TTL)
	v.SetDefault("history.plan_ids", def.History.PlanIDs)
	v.SetDefault("history.min_samples", def.History.MinSamples)
	v.SetDefault("cost.schedule", def.Cost.Schedule)
	v.SetDefault("cost.resource", def.Cost.Resource)
	v.SetDefault("cost.risk", def.Cost.Risk)
	v.SetDefault("cost.quality", def.Cost.Quality)
	v.SetDefault("cost.disruption", def.Cost.Disruption)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and parsable durations.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Simulation.Iterations < 0 {
		return fmt.Errorf("simulation.iterations must be >= 0, got %d", c.Simulation.Iterations)
	}
	if c.Simulation.QueueDelayK < 0 {
		return fmt.Errorf("simulation.queue_delay_k must be >= 0, got %g", c.Simulation.QueueDelayK)
	}
	if c.History.MinSamples < 1 {
		return fmt.Errorf("history.min_samples must be >= 1, got %d", c.History.MinSamples)
	}
	if _, err := time.ParseDuration(c.Locks.TTL); err != nil {
		return fmt.Errorf("locks.ttl: %w", err)
	}
	return nil
}

// LockTTL returns the parsed lock TTL. Validate guarantees it parses.
func (c *Config) LockTTL() time.Duration {
	d, err := time.ParseDuration(c.Locks.TTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}
