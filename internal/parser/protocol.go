// Package parser decodes the line protocol spoken by the seed-search worker.
//
// A worker writes four kinds of lines to stdout:
//
//	+Seed,Score,Col2,...   schema declaration (once per session)
//	|ABCD1234,42,7,...     result row
//	$Searching... :clock: 12.3K/s
//	anything else          worker chatter
//
// Classification is pure; the only per-session state (whether a schema has
// been established) lives in Session.
package parser

import (
	"strconv"
	"strings"
)

// KeyColumn is the name of the first column of every schema.
const KeyColumn = "Seed"

const (
	schemaPrefix = "+Seed,"
	resultPrefix = "|"
	statusPrefix = "$"
	markerChar   = "!"
)

// Kind identifies which protocol rule matched a line.
type Kind int

const (
	// KindUnrecognized is worker chatter, forwarded verbatim.
	KindUnrecognized Kind = iota

	// KindSchema declares the column names for the session.
	KindSchema

	// KindResult carries one result row.
	KindResult

	// KindStatus carries a progress message.
	KindStatus
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindResult:
		return "result"
	case KindStatus:
		return "status"
	default:
		return "unrecognized"
	}
}

// Schema is the ordered list of column names declared by a header line.
// Columns[0] is always KeyColumn.
type Schema struct {
	Columns    []string
	Duplicates []string
}

// HasDuplicates reports whether the header repeated a column name.
func (s Schema) HasDuplicates() bool {
	return len(s.Duplicates) > 0
}

// Row is a decoded result line, aligned to the schema it was parsed with.
type Row struct {
	Key    string
	Values []int64
}

// Classify applies the protocol rules in precedence order.
func Classify(line string) Kind {
	switch {
	case isSchemaLine(line):
		return KindSchema
	case strings.HasPrefix(line, resultPrefix):
		return KindResult
	case strings.HasPrefix(line, statusPrefix) && strings.TrimSpace(line) != statusPrefix:
		return KindStatus
	default:
		return KindUnrecognized
	}
}

func isSchemaLine(line string) bool {
	clean := strings.ReplaceAll(strings.TrimSpace(line), markerChar, "")
	return strings.HasPrefix(clean, schemaPrefix)
}

// ParseSchema decodes a header line. Marker characters are stripped, fields
// are trimmed, empty fields are dropped and the first field is renamed to
// KeyColumn. Repeated names are kept in place and reported in Duplicates.
func ParseSchema(line string) Schema {
	clean := strings.ReplaceAll(strings.TrimSpace(line), markerChar, "")
	clean = strings.TrimPrefix(clean, "+")

	parts := strings.Split(clean, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		columns = append(columns, p)
	}
	if len(columns) == 0 {
		columns = append(columns, KeyColumn)
	}
	columns[0] = KeyColumn

	seen := make(map[string]bool, len(columns))
	var dups []string
	for _, c := range columns {
		if seen[c] {
			dups = append(dups, c)
			continue
		}
		seen[c] = true
	}

	return Schema{Columns: columns, Duplicates: dups}
}

// ParseRow decodes a result line against a schema of width columns. The key
// is the first field; every later field is truncated at a decimal point and
// parsed as an integer, defaulting to 0. The result is padded with zeros or
// truncated so that len(Values) == width-1.
func ParseRow(line string, width int) Row {
	body := strings.TrimSpace(strings.TrimPrefix(line, resultPrefix))
	parts := strings.Split(body, ",")

	row := Row{Key: strings.TrimSpace(parts[0])}
	if width < 1 {
		width = 1
	}
	row.Values = make([]int64, width-1)
	for i := 1; i < len(parts) && i < width; i++ {
		row.Values[i-1] = parseInt(parts[i])
	}
	return row
}

func parseInt(field string) int64 {
	field = strings.TrimSpace(field)
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[:i]
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
