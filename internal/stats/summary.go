package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds the inputs of the exit summary.
type SummaryConfig struct {
	// Duration is the total session duration
	Duration time.Duration

	// ConfigName and DatabasePath identify the result store
	ConfigName   string
	DatabasePath string

	// DatabaseRows and DatabaseColumns describe the store at exit
	DatabaseRows    int64
	DatabaseColumns int
	DatabaseBytes   int64

	// TotalStarts is the number of worker processes spawned (from metrics.Collector)
	TotalStarts int64

	// RowsUpserted is the number of rows written this session
	RowsUpserted int64

	// PeakRate is the highest 10-second ingest rate seen, in rows/sec
	PeakRate float64

	// LineCounts maps protocol kind to line count
	LineCounts map[string]int64

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	// UptimeP50 and UptimeP95 are worker uptime percentiles
	UptimeP50 time.Duration
	UptimeP95 time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string
}

// FormatExitSummary formats the session summary printed at program exit.
// score may be nil when nothing was ingested.
func FormatExitSummary(score *ScoreSnapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                          go-seed-swarm Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Session Duration:       %s\n", FormatDuration(cfg.Duration))
	if cfg.ConfigName != "" {
		fmt.Fprintf(&b, "Configuration:          %s\n", cfg.ConfigName)
	}
	if cfg.DatabasePath != "" {
		fmt.Fprintf(&b, "Database:               %s\n", cfg.DatabasePath)
		fmt.Fprintf(&b, "Stored Results:         %s rows, %d columns (%s)\n",
			FormatNumber(cfg.DatabaseRows), cfg.DatabaseColumns, FormatBytes(cfg.DatabaseBytes))
	}
	b.WriteString("\n")

	// Ingest
	if cfg.RowsUpserted > 0 || len(cfg.LineCounts) > 0 {
		section(&b, "Ingest")
		fmt.Fprintf(&b, "  Rows Written:         %s", FormatNumber(cfg.RowsUpserted))
		if cfg.Duration > 0 {
			fmt.Fprintf(&b, "  (%s)", FormatRate(float64(cfg.RowsUpserted)/cfg.Duration.Seconds()))
		}
		b.WriteString("\n")
		if cfg.PeakRate > 0 {
			fmt.Fprintf(&b, "  Peak Rate (10s):      %s\n", FormatRate(cfg.PeakRate))
		}

		kinds := make([]string, 0, len(cfg.LineCounts))
		for k := range cfg.LineCounts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			if k == "" {
				continue
			}
			fmt.Fprintf(&b, "  %-21s %s\n", strings.ToUpper(k[:1])+k[1:]+" lines:", FormatNumber(cfg.LineCounts[k]))
		}
		b.WriteString("\n")
	}

	// Score distribution
	if score != nil && score.Count > 0 {
		section(&b, "Score Distribution")
		fmt.Fprintf(&b, "  Samples:              %s\n", FormatNumber(score.Count))
		fmt.Fprintf(&b, "  Min / Mean / Max:     %.0f / %.1f / %.0f\n", score.Min, score.Mean, score.Max)
		fmt.Fprintf(&b, "  P50 (median):         %.1f\n", score.P50)
		fmt.Fprintf(&b, "  P95:                  %.1f\n", score.P95)
		fmt.Fprintf(&b, "  P99:                  %.1f\n", score.P99)
		b.WriteString("\n")
	}

	// Workers
	if cfg.TotalStarts > 0 {
		section(&b, "Workers")
		fmt.Fprintf(&b, "  Total Starts:         %d\n", cfg.TotalStarts)
		if cfg.UptimeP50 > 0 || cfg.UptimeP95 > 0 {
			fmt.Fprintf(&b, "  Uptime P50:           %s\n", FormatDuration(cfg.UptimeP50))
			fmt.Fprintf(&b, "  Uptime P95:           %s\n", FormatDuration(cfg.UptimeP95))
		}
		b.WriteString("\n")
	}

	// Exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		section(&b, "Exit Codes")

		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	pad := (len(lightRule)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
