package config

import (
	"github.com/spf13/pflag"
)

// FlagConfigFile is the name of the flag that points at a YAML config file.
const FlagConfigFile = "config-file"

// BindFlags registers every setting on fs, with cfg's current values as
// defaults. Single-letter shorthands mirror the worker's own arguments.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	// Worker
	fs.StringVar(&cfg.WorkerPath, "worker-path", cfg.WorkerPath, "Path to the search worker executable")
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Working directory for the worker (default: current directory)")
	fs.StringVar(&cfg.ConfigName, "config", cfg.ConfigName, "Search configuration name (also names the result database)")
	fs.StringVarP(&cfg.Template, "template", "f", cfg.Template, "Worker filter template")
	fs.StringVarP(&cfg.StartingSeed, "seed", "s", cfg.StartingSeed, `Starting seed: "random" or up to 8 characters of [0-9A-Z]`)
	fs.StringVarP(&cfg.Threads, "threads", "g", cfg.Threads, "GPU thread groups: 1, 16, 32, 64, 128, 256")
	fs.StringVarP(&cfg.SeedCount, "count", "n", cfg.SeedCount, "Seeds to search: All, 1K, 100K, 1M, 100M, 1B, 10B, 100B or a number")
	fs.IntVarP(&cfg.Cutoff, "cutoff", "c", cfg.Cutoff, "Minimum score to report (0 = worker default)")
	fs.IntVarP(&cfg.BatchSize, "batch", "b", cfg.BatchSize, "GPU batch size (0 = worker default)")

	// Results
	fs.StringVar(&cfg.DatabaseDir, "database-dir", cfg.DatabaseDir, "Directory holding one result database per configuration")
	fs.IntVar(&cfg.QueryLimit, "query-limit", cfg.QueryLimit, "Rows shown by queries and the dashboard")
	fs.IntVar(&cfg.ExportLimit, "export-limit", cfg.ExportLimit, "Maximum rows written by export")

	// Ingest
	fs.IntVar(&cfg.LineBuffer, "line-buffer", cfg.LineBuffer, "Worker output lines buffered between reader and parser")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Minimum spacing of results-changed notifications")
	fs.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "Delay that collapses bursts of refresh requests")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address, e.g. 0.0.0.0:17091 (empty = disabled)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.IntVar(&cfg.ConsoleLines, "console-lines", cfg.ConsoleLines, "Diagnostic lines kept in memory")

	// Diagnostic modes
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use --tui=false for plain console output)")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	fs.String(FlagConfigFile, "", "YAML file with settings; explicit flags override it")
}
