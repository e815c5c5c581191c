package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Metrics delimiters. Workers built from different revisions emit either.
var metricsDelimiters = []string{":clock:", "$clock$"}

var (
	elapsedRe   = regexp.MustCompile(`Elapsed time: (\d+(?:\.\d+)?) seconds`)
	remainingRe = regexp.MustCompile(`Estimated remaining time: (\d+(?:\.\d+)?) seconds`)
)

// Status is a decoded progress line.
type Status struct {
	// Message is the primary status text with durations rewritten.
	Message string

	// Metrics is the fragment after the metrics delimiter, if any.
	Metrics string
}

// ParseStatus strips the status marker, rewrites embedded durations and
// splits off the metrics fragment.
func ParseStatus(line string) Status {
	msg := strings.TrimSpace(line)
	msg = strings.TrimSpace(strings.TrimPrefix(msg, statusPrefix))

	msg = elapsedRe.ReplaceAllStringFunc(msg, func(m string) string {
		return "Elapsed time: " + rewriteSeconds(elapsedRe, m)
	})
	msg = remainingRe.ReplaceAllStringFunc(msg, func(m string) string {
		return "Estimated remaining time: " + rewriteSeconds(remainingRe, m)
	})

	for _, delim := range metricsDelimiters {
		parts := strings.Split(msg, delim)
		if len(parts) == 2 {
			return Status{
				Message: strings.TrimSpace(parts[0]),
				Metrics: strings.TrimSpace(parts[1]),
			}
		}
	}
	return Status{Message: msg}
}

func rewriteSeconds(re *regexp.Regexp, match string) string {
	sub := re.FindStringSubmatch(match)
	secs, err := strconv.ParseFloat(sub[1], 64)
	if err != nil {
		return sub[1] + " seconds"
	}
	return FormatSeconds(secs)
}

// FormatSeconds renders a duration in seconds as "1d 2h 3m 4s", omitting
// leading zero units. Fractions are truncated.
func FormatSeconds(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int64(secs)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
