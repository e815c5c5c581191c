package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
)

const (
	consolePaneLines = 6
	maxColumnWidth   = 14
	minTableRows     = 3
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the whole screen.
func (m Model) renderDashboard() string {
	var sections []string

	sections = append(sections, m.renderHeader())

	if m.sequence.Active {
		sections = append(sections, m.renderSequence())
	}

	sections = append(sections, m.renderStatus())
	sections = append(sections, m.renderResults(m.tableRows()))
	sections = append(sections, m.renderConsole())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// tableRows returns how many result rows fit beside the other panes.
func (m Model) tableRows() int {
	// header + status + table title/header + console pane + footer
	used := 1 + 1 + 2 + consolePaneLines + 2 + 1
	if m.sequence.Active {
		used += 5
	}
	rows := m.height - used
	if rows < minTableRows {
		rows = minTableRows
	}
	return rows
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-seed-swarm │ %s │ Config: %s │ Workers: %d │ Elapsed: %s ",
		GetStateLabel(m.State()),
		m.configName,
		len(m.workers),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Sequence Progress
// =============================================================================

func (m Model) renderSequence() string {
	barWidth := m.width - 20
	if barWidth < 20 {
		barWidth = 20
	}

	step := fmt.Sprintf("%d / %d", m.sequence.Index+1, m.sequence.Total)
	current := fmt.Sprintf("%s (n=%s)", m.sequence.Current.Seed, formatCount(m.sequence.Current.N))

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render(m.sequence.Label+" fun search"),
		RenderKeyValue("Step", step)+"   "+RenderKeyValue("Seed", current),
		RenderProgressBar(m.SequenceProgress(), barWidth),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Status Line
// =============================================================================

func (m Model) renderStatus() string {
	var line string
	if m.status.Message == "" && m.status.Metrics == "" {
		line = dimStyle.Render(" waiting for worker status...")
	} else {
		line = " " + statusInfo.Render(m.status.Message)
		if m.status.Metrics != "" {
			line += mutedStyle.Render("  │  " + m.status.Metrics)
		}
	}
	if m.rate.Total > 0 {
		line += mutedStyle.Render(fmt.Sprintf("  │  %s rows stored, %.1f/s",
			formatCount(m.rate.Total), m.rate.Short))
	}
	return truncate(line, m.width)
}

// =============================================================================
// Results Table
// =============================================================================

func (m Model) renderResults(maxRows int) string {
	title := fmt.Sprintf("Results (%d shown, sorted by %s %s)",
		m.ResultCount(), m.query.SortColumn, sortArrow(m.query.Descending))

	var body string
	switch {
	case m.resultsErr != nil:
		body = statusError.Render("Error loading results: " + m.resultsErr.Error())
	case m.results == nil || len(m.results.Columns) == 0:
		body = dimStyle.Render("No results yet")
	default:
		body = m.renderTable(maxRows)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render(title),
		body,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderTable(maxRows int) string {
	rs := m.results
	widths := columnWidths(rs.Columns, m.width-6)

	var b strings.Builder
	for i, w := range widths {
		b.WriteString(tableHeaderStyle.Render(pad(rs.Columns[i], w)))
	}

	rows := len(rs.Records)
	if rows > maxRows {
		rows = maxRows
	}
	for r := 0; r < rows; r++ {
		rec := rs.Records[r]
		style := tableRowEvenStyle
		if r%2 == 1 {
			style = tableRowOddStyle
		}

		var line strings.Builder
		for i, w := range widths {
			cell := rec.Key
			if i > 0 {
				cell = "0"
				if i-1 < len(rec.Values) {
					cell = strconv.FormatInt(rec.Values[i-1], 10)
				}
			}
			line.WriteString(pad(cell, w))
		}
		b.WriteString("\n")
		b.WriteString(style.Render(line.String()))
	}

	if hidden := len(rs.Records) - rows; hidden > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("… %d more", hidden)))
	}
	return b.String()
}

// columnWidths sizes each column to its header, capped, and drops columns
// that do not fit in total.
func columnWidths(columns []string, total int) []int {
	widths := make([]int, 0, len(columns))
	used := 0
	for i, c := range columns {
		w := len(c) + 2
		if i == 0 && w < 10 {
			w = 10 // room for an 8-character seed
		}
		if w > maxColumnWidth {
			w = maxColumnWidth
		}
		if i > 0 && used+w > total {
			break
		}
		widths = append(widths, w)
		used += w
	}
	return widths
}

// =============================================================================
// Console
// =============================================================================

func (m Model) renderConsole() string {
	start := len(m.lines) - consolePaneLines
	if start < 0 {
		start = 0
	}

	rendered := make([]string, 0, consolePaneLines)
	for _, l := range m.lines[start:] {
		rendered = append(rendered, truncate(logging.Render(l), m.width-4))
	}
	for len(rendered) < consolePaneLines {
		rendered = append(rendered, "")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Console"),
		strings.Join(rendered, "\n"),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	keys := "q quit • s stop • r refresh • o sort order"
	if m.metricsAddr != "" {
		keys += " • metrics http://" + m.metricsAddr + "/metrics"
	}
	return footerStyle.Render(" " + keys)
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatCount formats a number with K/M/B suffixes.
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return strconv.FormatInt(n, 10)
}

func sortArrow(desc bool) string {
	if desc {
		return "↓"
	}
	return "↑"
}

// pad left-aligns s in a field of width w, truncating if needed.
func pad(s string, w int) string {
	if len(s) >= w {
		if w <= 1 {
			return s[:w]
		}
		return s[:w-1] + " "
	}
	return s + strings.Repeat(" ", w-len(s))
}

// truncate cuts a rendered line to width printable cells.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
