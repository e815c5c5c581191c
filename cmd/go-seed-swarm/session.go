package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/metrics"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-seed-swarm/internal/tui"
)

// runSession runs job under an orchestrator until it finishes or the user
// stops it, on the dashboard or as plain console output.
func (a *app) runSession(ctx context.Context, mode string, job orchestrator.Job) error {
	cfg := a.cfg
	a.logger.Info("starting",
		"version", version,
		"mode", mode,
		"config", cfg.ConfigName,
		"worker", cfg.WorkerPath,
		"threads", cfg.Threads,
		"metrics_addr", cfg.MetricsAddr,
	)

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:    version,
		ConfigName: cfg.ConfigName,
	})

	if !cfg.TUIEnabled {
		orch := orchestrator.New(orchestrator.Config{
			Settings: cfg,
			Logger:   a.logger,
			Console:  logging.NewConsole(os.Stderr, cfg.ConsoleLines),
			Metrics:  collector,
		})
		defer orch.Close()

		printBanner(cfg, mode)
		return orch.Run(ctx, job, os.Stdout)
	}

	display := tui.NewProgramDisplay()
	console := logging.NewConsole(nil, cfg.ConsoleLines)
	orch := orchestrator.New(orchestrator.Config{
		Settings: cfg,
		Logger:   a.logger,
		Console:  console,
		Display:  display,
		Metrics:  collector,
	})
	defer orch.Close()

	// Checks print to the terminal, so they run before the dashboard.
	if !cfg.SkipPreflight {
		if err := orch.Preflight(ctx, os.Stderr); err != nil {
			return err
		}
		cfg.SkipPreflight = true
	}

	model := tui.New(tui.Config{
		ConfigName:  cfg.ConfigName,
		MetricsAddr: cfg.MetricsAddr,
		QueryLimit:  cfg.QueryLimit,
		Controller:  orch,
		Recent:      console.RecentLines(cfg.ConsoleLines),
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	display.Attach(program)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var summary bytes.Buffer
	g, gctx := errgroup.WithContext(ctx)

	// Quitting the dashboard ends the session.
	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})

	// The dashboard stays up after the search finishes so the results can
	// be browsed; it only closes itself when the session failed.
	g.Go(func() error {
		err := orch.Run(gctx, job, &summary)
		if err != nil {
			tui.SendQuit(program)
		}
		return err
	})

	err := g.Wait()
	fmt.Print(summary.String())
	return err
}
