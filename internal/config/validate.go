package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-seed-swarm/internal/process"
)

// ErrMissingIdentity is returned when no configuration name is set. The
// name selects both the worker's search configuration and the result
// database.
var ErrMissingIdentity = errors.New("configuration name is required")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string

	// Err is an optional sentinel for errors.Is.
	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel, if any.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.ConfigName) == "" {
		errs = append(errs, ValidationError{
			Field:   "config",
			Message: "a configuration name is required",
			Err:     ErrMissingIdentity,
		})
	}

	if cfg.WorkerPath == "" {
		errs = append(errs, ValidationError{
			Field:   "worker_path",
			Message: "path to the search worker is required",
		})
	}

	if !process.ValidSeed(cfg.StartingSeed) {
		errs = append(errs, ValidationError{
			Field:   "starting_seed",
			Message: fmt.Sprintf("must be %q or 1-%d characters from [0-9A-Z] (got %q)", process.RandomSeed, process.MaxSeedLength, cfg.StartingSeed),
		})
	}

	if !process.ValidThreads(cfg.Threads) {
		errs = append(errs, ValidationError{
			Field:   "threads",
			Message: fmt.Sprintf("must be one of: 1, 16, 32, 64, 128, 256 (got %q)", cfg.Threads),
		})
	}

	if _, _, err := process.ParseSeedCount(cfg.SeedCount); err != nil {
		errs = append(errs, ValidationError{
			Field:   "seed_count",
			Message: "must be All, 1K, 100K, 1M, 100M, 1B, 10B, 100B or a positive integer",
			Err:     err,
		})
	}

	if cfg.Cutoff < 0 {
		errs = append(errs, ValidationError{
			Field:   "cutoff",
			Message: "must not be negative",
		})
	}
	if cfg.BatchSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "batch_size",
			Message: "must not be negative",
		})
	}

	if cfg.QueryLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "query_limit",
			Message: "must be at least 1",
		})
	}
	if cfg.ExportLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "export_limit",
			Message: "must be at least 1",
		})
	}

	if cfg.LineBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "line_buffer",
			Message: "must be at least 1",
		})
	}
	if cfg.RefreshInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "refresh_interval",
			Message: "must be positive",
		})
	}
	if cfg.DebounceDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "debounce_delay",
			Message: "must not be negative",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.ConsoleLines < 1 {
		errs = append(errs, ValidationError{
			Field:   "console_lines",
			Message: "must be at least 1",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
