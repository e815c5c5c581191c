package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-seed-swarm/internal/logging"
	"github.com/randomizedcoder/go-seed-swarm/internal/parser"
	"github.com/randomizedcoder/go-seed-swarm/internal/sink"
)

// ingest routes one worker session's events into the sink, the throttle,
// the console and the display. It is fed from a single parser goroutine.
type ingest struct {
	o       *Orchestrator
	session *parser.Session
	dropped int64

	// scoreIdx is the index of the Score column in Row.Values, or -1.
	scoreIdx int
}

var _ parser.Handler = (*ingest)(nil)

// newIngest returns the handler and the parser session that feeds it.
func newIngest(o *Orchestrator) (*ingest, *parser.Session) {
	in := &ingest{o: o, scoreIdx: -1}
	in.session = parser.NewSession(in)
	return in, in.session
}

func (in *ingest) OnSchema(schema parser.Schema) {
	o := in.o
	o.metrics.RecordLine(parser.KindSchema.String())
	if schema.HasDuplicates() {
		o.metrics.DuplicateHeader()
	}

	in.scoreIdx = -1
	for i, c := range schema.Columns {
		if i > 0 && strings.EqualFold(c, sink.ScoreColumn) {
			in.scoreIdx = i - 1
			break
		}
	}

	if err := o.sink.EnsureSchema(schema.Columns); err != nil {
		o.metrics.SinkError("schema")
		o.logger.Error("sink_schema_failed", "error", err)
		o.console.Append(logging.KindError, "Error updating table schema: "+err.Error())
		return
	}
	o.metrics.SetSchemaColumns(len(schema.Columns))
	o.logger.Debug("schema_established", "columns", len(schema.Columns))
}

func (in *ingest) OnRow(schema parser.Schema, row parser.Row) {
	o := in.o
	o.metrics.RecordLine(parser.KindResult.String())

	if err := o.sink.Upsert(schema.Columns, row.Key, row.Values); err != nil {
		if errors.Is(err, sink.ErrEmptyKey) {
			o.metrics.RowDropped()
			o.console.Append(logging.KindApp, "Skipping result with empty seed")
			return
		}
		o.metrics.SinkError("upsert")
		o.logger.Warn("sink_upsert_failed", "seed", row.Key, "error", err)
		o.console.Append(logging.KindError, fmt.Sprintf("Error processing line: %v\nLine: |%s", err, row.Key))
		return
	}
	o.metrics.RowUpserted()
	o.rows.Add(1)

	if in.scoreIdx >= 0 && in.scoreIdx < len(row.Values) {
		o.scores.Add(row.Values[in.scoreIdx])
	}
	o.throttle.Signal()
}

func (in *ingest) OnStatus(status parser.Status) {
	in.o.metrics.RecordLine(parser.KindStatus.String())
	in.o.display.Status(status)
}

func (in *ingest) OnChatter(line string) {
	in.o.metrics.RecordLine(parser.KindUnrecognized.String())
	in.o.console.Append(logging.KindWorker, line)
}

func (in *ingest) OnNotice(msg string) {
	if n := in.session.RowsDropped(); n > in.dropped {
		in.dropped = n
		in.o.metrics.RecordLine(parser.KindResult.String())
		in.o.metrics.RowDropped()
	}
	in.o.console.Append(logging.KindApp, msg)
}
