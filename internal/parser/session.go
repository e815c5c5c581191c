package parser

import (
	"fmt"
	"sync/atomic"
)

// Handler receives the events decoded by a Session, in line order.
type Handler interface {
	// OnSchema is called once, for the first schema line of the session.
	OnSchema(schema Schema)

	// OnRow is called for every result line after the schema.
	OnRow(schema Schema, row Row)

	// OnStatus is called for every status line.
	OnStatus(status Status)

	// OnChatter is called for unrecognized lines, verbatim.
	OnChatter(line string)

	// OnNotice reports protocol anomalies (duplicate headers, rows that
	// arrived before a schema).
	OnNotice(msg string)
}

// Session decodes one worker's stdout. It implements LineParser and must be
// fed from a single goroutine.
type Session struct {
	handler Handler

	schema      Schema
	established bool

	rowsDropped  atomic.Int64
	extraHeaders atomic.Int64
}

// NewSession creates a parser session that reports to h.
func NewSession(h Handler) *Session {
	return &Session{handler: h}
}

// ParseLine classifies and dispatches a single line.
func (s *Session) ParseLine(line string) {
	switch Classify(line) {
	case KindSchema:
		if s.established {
			s.extraHeaders.Add(1)
			return
		}
		schema := ParseSchema(line)
		if schema.HasDuplicates() {
			s.handler.OnNotice(fmt.Sprintf("Warning: Duplicate headers found: %v", schema.Columns))
		}
		s.schema = schema
		s.established = true
		s.handler.OnSchema(schema)

	case KindResult:
		if !s.established {
			s.rowsDropped.Add(1)
			s.handler.OnNotice(fmt.Sprintf("Skipping result line, header not yet found: %s", line))
			return
		}
		s.handler.OnRow(s.schema, ParseRow(line, len(s.schema.Columns)))

	case KindStatus:
		s.handler.OnStatus(ParseStatus(line))

	default:
		s.handler.OnChatter(line)
	}
}

// Established reports whether a schema has been set for this session.
func (s *Session) Established() bool {
	return s.established
}

// Schema returns the active schema. Zero until Established.
func (s *Session) Schema() Schema {
	return s.schema
}

// RowsDropped returns the number of result lines seen before a schema.
func (s *Session) RowsDropped() int64 {
	return s.rowsDropped.Load()
}
