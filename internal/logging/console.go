package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	// MaxLineLength is the maximum length of a console line before truncation.
	MaxLineLength = 4096

	// DefaultConsoleLines is the number of recent lines the console keeps.
	DefaultConsoleLines = 500
)

// Kind tags a diagnostic line with its origin.
type Kind int

const (
	// KindApp is a message from this program.
	KindApp Kind = iota

	// KindWorker is unrecognized worker output, shown verbatim.
	KindWorker

	// KindStatus is a worker progress message.
	KindStatus

	// KindError is an error, including worker stderr.
	KindError
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindWorker:
		return "CLI"
	case KindStatus:
		return "STATUS"
	case KindError:
		return "ERROR"
	default:
		return "APP"
	}
}

// Line is one entry of the diagnostic log.
type Line struct {
	Time time.Time
	Kind Kind
	Text string
}

var (
	appStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))
	workerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	stampStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Style returns the color used for a kind.
func Style(k Kind) lipgloss.Style {
	switch k {
	case KindWorker:
		return workerStyle
	case KindStatus:
		return statusStyle
	case KindError:
		return errorStyle
	default:
		return appStyle
	}
}

// Render formats a line with its timestamp, colored by kind.
func Render(l Line) string {
	stamp := stampStyle.Render(l.Time.Format("15:04:05"))
	return stamp + " " + Style(l.Kind).Render(l.Text)
}

// Console is an append-only, colored diagnostic log. It keeps the most
// recent lines in a ring buffer for the dashboard and optionally echoes
// every line to a writer.
type Console struct {
	out io.Writer
	now func() time.Time

	mu     sync.Mutex
	buffer []Line
	bufIdx int
	total  int
	byKind map[Kind]int
	subs   []func(Line)
}

// NewConsole creates a console keeping capacity lines. out may be nil.
func NewConsole(out io.Writer, capacity int) *Console {
	if capacity < 1 {
		capacity = DefaultConsoleLines
	}
	return &Console{
		out:    out,
		now:    time.Now,
		buffer: make([]Line, capacity),
		byKind: make(map[Kind]int),
	}
}

// Subscribe registers fn to receive every appended line.
func (c *Console) Subscribe(fn func(Line)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Append adds a line. Trailing newlines are stripped; embedded newlines
// produce one entry per line.
func (c *Console) Append(kind Kind, text string) {
	text = strings.TrimRight(text, "\r\n")
	for _, part := range strings.Split(text, "\n") {
		c.appendOne(kind, part)
	}
}

// Appendf adds a formatted line.
func (c *Console) Appendf(kind Kind, format string, args ...any) {
	c.Append(kind, fmt.Sprintf(format, args...))
}

func (c *Console) appendOne(kind Kind, text string) {
	if len(text) > MaxLineLength {
		text = text[:MaxLineLength] + "...(truncated)"
	}
	line := Line{Time: c.now(), Kind: kind, Text: text}

	c.mu.Lock()
	c.buffer[c.bufIdx] = line
	c.bufIdx = (c.bufIdx + 1) % len(c.buffer)
	c.total++
	c.byKind[kind]++
	subs := c.subs
	if c.out != nil {
		fmt.Fprintln(c.out, Render(line))
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(line)
	}
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (c *Console) RecentLines(n int) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(c.buffer)
	if n > size {
		n = size
	}
	if n > c.total {
		n = c.total
	}

	lines := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		idx := (c.bufIdx - n + i + size) % size
		lines = append(lines, c.buffer[idx])
	}
	return lines
}

// Total returns the number of lines ever appended.
func (c *Console) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CountByKind returns how many lines of each kind were appended.
func (c *Console) CountByKind() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[Kind]int, len(c.byKind))
	for k, v := range c.byKind {
		counts[k] = v
	}
	return counts
}
