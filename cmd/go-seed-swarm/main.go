// Package main provides the go-seed-swarm CLI entry point.
//
// go-seed-swarm drives an external GPU seed-search worker, streams the
// results it prints into a per-configuration SQLite database and shows the
// best seeds found so far, either on a live dashboard or as plain console
// output.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-seed-swarm/internal/config"
	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-seed-swarm
var version = "dev"

// Exit codes
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitBusy   = 3
)

// Commands that run without a validated configuration.
var noValidateCommands = map[string]bool{
	"version":    true,
	"categories": true,
	"help":       true,
	"completion": true,
}

// Commands that start a worker and may own the terminal.
var sessionCommands = map[string]bool{
	"search": true,
	"fun":    true,
}

// app holds state shared by all subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	a := &app{cfg: config.DefaultConfig()}

	root := newRootCmd(a)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var verr config.ValidationError
	switch {
	case errors.Is(err, config.ErrMissingIdentity), errors.As(err, &verr):
		return exitConfig
	case errors.Is(err, orchestrator.ErrBusy):
		return exitBusy
	}
	return exitError
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "go-seed-swarm",
		Short: "Run GPU seed searches and collect the best results",
		Long: `go-seed-swarm runs a seed-search worker, parses the results it prints
and keeps them in a SQLite database named after the search configuration.

"search" runs one search with the configured settings. "fun" walks a list of
words and searches seeds spelling each word with padding around it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	config.BindFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		newSearchCmd(a),
		newFunCmd(a),
		newResultsCmd(a),
		newExportCmd(a),
		newResetCmd(a),
		newPrintCmdCmd(a),
		newCategoriesCmd(),
		newConfigCmd(a),
		newMetricsCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup resolves the config file, validates the result and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.Resolve(cmd.Flags(), a.cfg); err != nil {
		return err
	}

	if !noValidateCommands[cmd.Name()] {
		if err := config.Validate(a.cfg); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}

	// The dashboard owns the terminal, so structured logs are dropped.
	if sessionCommands[cmd.Name()] && a.cfg.TUIEnabled {
		a.logger = logging.Discard()
	} else {
		a.logger = logging.NewLogger(a.cfg.LogFormat, a.cfg.LogLevel, a.cfg.Verbose)
	}
	logging.SetDefault(a.logger)
	return nil
}

// newOrchestrator builds an orchestrator for one-shot database commands.
func (a *app) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		Settings: a.cfg,
		Logger:   a.logger,
		Console:  logging.NewConsole(nil, a.cfg.ConsoleLines),
	})
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config, mode string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         go-seed-swarm                             ║")
	fmt.Println("║           GPU Seed Search with Live Result Ingestion              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Mode:        %s\n", mode)
	fmt.Printf("  Config:      %s\n", cfg.ConfigName)
	fmt.Printf("  Worker:      %s\n", cfg.WorkerPath)
	fmt.Printf("  Threads:     %s\n", cfg.Threads)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseDir)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
