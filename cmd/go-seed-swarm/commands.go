package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-seed-swarm/internal/config"
	"github.com/randomizedcoder/go-seed-swarm/internal/metrics"
	"github.com/randomizedcoder/go-seed-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-seed-swarm/internal/process"
	"github.com/randomizedcoder/go-seed-swarm/internal/sink"
)

// customLabel names sequences built from --words.
const customLabel = "CUSTOM"

// =============================================================================
// Search Sessions
// =============================================================================

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Run one search with the configured settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context(), "search", func(ctx context.Context, o *orchestrator.Orchestrator) error {
				return o.StartSearch(ctx)
			})
		},
	}
}

func newFunCmd(a *app) *cobra.Command {
	var words []string

	cmd := &cobra.Command{
		Use:   "fun [CATEGORY]",
		Short: "Search seeds that spell words from a category or a custom list",
		Long: `fun searches, word by word, for seeds that contain each word padded
with '1' characters on either side. Each step is bounded to the number of
seeds its right-hand padding can reach.

Run "go-seed-swarm categories" for the built-in categories, or pass your own
words with --words.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, list, err := funWords(args, words)
			if err != nil {
				return err
			}
			mode := fmt.Sprintf("fun search (%s, %d words)", label, len(list))
			return a.runSession(cmd.Context(), mode, func(ctx context.Context, o *orchestrator.Orchestrator) error {
				return o.StartSequenceWords(ctx, label, list)
			})
		},
	}

	cmd.Flags().StringSliceVar(&words, "words", nil, "Comma-separated words to search instead of a category")
	return cmd
}

// funWords resolves the sequence label and words from a category argument
// or --words, checking them before any worker starts.
func funWords(args, words []string) (string, []string, error) {
	switch {
	case len(args) > 0 && len(words) > 0:
		return "", nil, errors.New("give a category or --words, not both")
	case len(words) > 0:
		list, _, err := orchestrator.NormalizeWords(words)
		return customLabel, list, err
	case len(args) == 0:
		return "", nil, fmt.Errorf("a category is required (one of %s) or --words",
			strings.Join(orchestrator.Categories(), ", "))
	}

	list, err := orchestrator.CategoryWords(args[0])
	if err != nil {
		return "", nil, err
	}
	return strings.ToUpper(strings.TrimSpace(args[0])), list, nil
}

// =============================================================================
// Database Commands
// =============================================================================

type resultsOptions struct {
	limit     int
	sort      string
	ascending bool
	format    string
}

func newResultsCmd(a *app) *cobra.Command {
	opts := &resultsOptions{}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show stored results, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := a.newOrchestrator()
			defer orch.Close()

			query := sink.QueryOptions{
				SortColumn: opts.sort,
				Descending: !opts.ascending,
				Limit:      opts.limit,
			}
			if query.Limit == 0 {
				query.Limit = a.cfg.QueryLimit
			}
			rs, err := orch.Results(query)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), opts.format, rs)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Rows to show (0 = --query-limit, negative = all)")
	cmd.Flags().StringVar(&opts.sort, "sort", sink.ScoreColumn, "Column to sort by")
	cmd.Flags().BoolVar(&opts.ascending, "asc", false, "Sort ascending")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table, csv or json")
	return cmd
}

func writeResults(w io.Writer, format string, rs *sink.ResultSet) error {
	switch strings.ToLower(format) {
	case "table":
		if len(rs.Columns) == 0 {
			_, err := fmt.Fprintln(w, "No results yet")
			return err
		}
		_, err := fmt.Fprintln(w, renderResultsTable(rs))
		return err
	case "csv":
		return sink.WriteCSV(w, rs)
	case "json":
		return sink.WriteJSON(w, rs)
	}
	return fmt.Errorf("unknown output format %q (want table, csv or json)", format)
}

func renderResultsTable(rs *sink.ResultSet) string {
	rows := make([][]string, 0, len(rs.Records))
	for _, rec := range rs.Records {
		row := make([]string, 0, len(rs.Columns))
		row = append(row, rec.Key)
		for _, v := range rec.Values {
			row = append(row, strconv.FormatInt(v, 10))
		}
		rows = append(rows, row)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#374151"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(rs.Columns...).
		Rows(rows...).
		String()
}

type exportOptions struct {
	format string
	limit  int
}

func newExportCmd(a *app) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export PATH",
		Short: "Export results to CSV, Excel or JSON",
		Long: `export writes the best results to PATH. The format comes from --format,
or from the file extension (.csv, .xlsx, .json) when --format is empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var (
				format sink.Format
				err    error
			)
			if opts.format != "" {
				format, err = sink.ParseFormat(opts.format)
			} else {
				format, err = sink.FormatForPath(path)
			}
			if err != nil {
				return err
			}

			orch := a.newOrchestrator()
			defer orch.Close()

			n, err := orch.Export(format, path, opts.limit)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d results to %s\n", n, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "Export format: csv, xlsx or json (default: from extension)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum rows (0 = --export-limit)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored result for the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sink.PathFor(a.cfg.DatabaseDir, a.cfg.ConfigName)
			if !force {
				return fmt.Errorf("refusing to delete all results in %s without --force", path)
			}

			orch := a.newOrchestrator()
			defer orch.Close()

			if err := orch.DeleteAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted all results in %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deleting all results")
	return cmd
}

// =============================================================================
// Informational Commands
// =============================================================================

func newPrintCmdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "print-cmd",
		Short: "Print the worker command that search would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := process.NewWorkerRunner(a.cfg.WorkerConfig())

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# Worker command that would be run:")
			fmt.Fprintln(out)
			fmt.Fprintln(out, runner.CommandString())
			return nil
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the built-in fun search categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range orchestrator.Categories() {
				words, err := orchestrator.CategoryWords(name)
				if err != nil {
					return err
				}
				steps := len(orchestrator.GenerateFunSeeds(words))
				fmt.Fprintf(out, "%-6s %3d steps  %s\n", name, steps, strings.Join(words, " "))
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `config prints the settings after applying --config-file and flags. The
output can be saved and passed back with --config-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(cmd.OutOrStdout(), a.cfg)
		},
	}
}

type metricsOptions struct {
	url  string
	list bool
}

func newMetricsCmd(a *app) *cobra.Command {
	opts := &metricsOptions{}

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the metrics of a running session",
		Long: `metrics scrapes the /metrics endpoint of a running session (--metrics
address or --url) and prints its go-seed-swarm series. --list prints the
metric catalog without contacting anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if opts.list {
				reg := prometheus.NewRegistry()
				metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
					Version:    version,
					ConfigName: a.cfg.ConfigName,
				}, reg)
				return metrics.WriteText(out, reg)
			}

			url := opts.url
			if url == "" {
				if a.cfg.MetricsAddr == "" {
					return errors.New("no metrics address: pass --metrics or --url")
				}
				url = "http://" + a.cfg.MetricsAddr + "/metrics"
			}

			families, err := metrics.Scrape(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("scraping %s: %w", url, err)
			}
			return writeSeries(out, metrics.Flatten(families))
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "Metrics URL (default: http://<--metrics>/metrics)")
	cmd.Flags().BoolVar(&opts.list, "list", false, "Print the metric catalog instead of scraping")
	return cmd
}

// writeSeries prints this program's series in name order.
func writeSeries(w io.Writer, series map[string]float64) error {
	keys := make([]string, 0, len(series))
	for k := range series {
		if strings.HasPrefix(k, "seed_swarm_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s %s\n", k, strconv.FormatFloat(series[k], 'g', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "go-seed-swarm %s\n", version)
			if info, ok := debug.ReadBuildInfo(); ok {
				fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" {
						fmt.Fprintf(out, "  commit: %s\n", s.Value)
					}
				}
			}
		},
	}
}
