// Package config provides configuration management for go-seed-swarm.
package config

import (
	"time"

	"github.com/randomizedcoder/go-seed-swarm/internal/process"
)

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Worker
	WorkerPath   string `yaml:"worker_path" json:"worker_path"`
	WorkDir      string `yaml:"work_dir" json:"work_dir"`
	ConfigName   string `yaml:"config" json:"config"`
	Template     string `yaml:"template" json:"template"`
	StartingSeed string `yaml:"starting_seed" json:"starting_seed"` // "random" or up to 8 of [0-9A-Z]
	Threads      string `yaml:"threads" json:"threads"`             // 1, 16, 32, 64, 128, 256
	SeedCount    string `yaml:"seed_count" json:"seed_count"`       // All, 1K, 100K, 1M, ... or an integer
	Cutoff       int    `yaml:"cutoff" json:"cutoff"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`

	// Results
	DatabaseDir string `yaml:"database_dir" json:"database_dir"`
	QueryLimit  int    `yaml:"query_limit" json:"query_limit"`
	ExportLimit int    `yaml:"export_limit" json:"export_limit"`

	// Ingest
	LineBuffer      int           `yaml:"line_buffer" json:"line_buffer"`
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	DebounceDelay   time.Duration `yaml:"debounce_delay" json:"debounce_delay"`

	// Observability
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"` // empty = disabled
	Verbose      bool   `yaml:"verbose" json:"verbose"`
	LogFormat    string `yaml:"log_format" json:"log_format"` // json, text
	LogLevel     string `yaml:"log_level" json:"log_level"`
	ConsoleLines int    `yaml:"console_lines" json:"console_lines"`

	// Diagnostic modes
	TUIEnabled    bool `yaml:"tui" json:"tui"`
	SkipPreflight bool `yaml:"skip_preflight" json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Worker
		WorkerPath:   "./seed-cli",
		ConfigName:   "default",
		StartingSeed: process.RandomSeed,
		Threads:      process.DefaultThreads,
		SeedCount:    "All",
		Cutoff:       1,
		BatchSize:    16,

		// Results
		DatabaseDir: "seed_database",
		QueryLimit:  1000,
		ExportLimit: 10000,

		// Ingest
		LineBuffer:      256,
		RefreshInterval: time.Second,
		DebounceDelay:   500 * time.Millisecond,

		// Observability
		MetricsAddr:  "",
		Verbose:      false,
		LogFormat:    "text",
		LogLevel:     "info",
		ConsoleLines: 500,

		TUIEnabled: true,
	}
}

// WorkerConfig returns the subset of settings that become worker
// arguments.
func (c *Config) WorkerConfig() *process.WorkerConfig {
	return &process.WorkerConfig{
		BinaryPath:   c.WorkerPath,
		WorkDir:      c.WorkDir,
		ConfigName:   c.ConfigName,
		Template:     c.Template,
		StartingSeed: c.StartingSeed,
		Threads:      c.Threads,
		SeedCount:    c.SeedCount,
		Cutoff:       c.Cutoff,
		BatchSize:    c.BatchSize,
	}
}
