package parser

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// LineParser consumes one line at a time. Session and LineParserFunc
// implement it.
type LineParser interface {
	ParseLine(line string)
}

// LineParserFunc adapts a plain function to LineParser.
type LineParserFunc func(line string)

// ParseLine calls f(line).
func (f LineParserFunc) ParseLine(line string) { f(line) }

// Pipeline moves lines from a reader goroutine to a parser goroutine through
// a bounded channel.
//
// Two layers:
//
//	Layer 1 (Reader): scans lines and blocks when the channel is full
//	Layer 2 (Parser): consumes lines in order, one failure never stops the loop
//
// Sends block instead of dropping: result lines are data, not telemetry,
// and every one of them must reach the sink in the order it was written.
type Pipeline struct {
	workerID   string
	streamType string // "stdout" or "stderr"

	lineChan  chan string
	closeOnce sync.Once

	linesRead   atomic.Int64
	linesParsed atomic.Int64
	linesFailed atomic.Int64

	onFailure func(line string, err error)
}

// NewPipeline creates an ordered parsing pipeline.
func NewPipeline(workerID, streamType string, bufferSize int) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Pipeline{
		workerID:   workerID,
		streamType: streamType,
		lineChan:   make(chan string, bufferSize),
	}
}

// OnFailure registers a hook invoked when parsing a line panics. Must be
// called before RunParser.
func (p *Pipeline) OnFailure(fn func(line string, err error)) {
	p.onFailure = fn
}

// FeedLine queues a line, blocking while the parser catches up.
func (p *Pipeline) FeedLine(line string) {
	p.linesRead.Add(1)
	p.lineChan <- line
}

// CloseChannel signals the parser that no more lines will arrive.
// Safe to call multiple times.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser consumes lines until the channel is closed.
//
// MUST run in a dedicated goroutine.
func (p *Pipeline) RunParser(lp LineParser) {
	for line := range p.lineChan {
		if err := p.parseOne(lp, line); err != nil {
			p.linesFailed.Add(1)
			if p.onFailure != nil {
				p.onFailure(line, err)
			}
			continue
		}
		p.linesParsed.Add(1)
	}
}

func (p *Pipeline) parseOne(lp LineParser, line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing %s line: %v", p.streamType, r)
		}
	}()
	lp.ParseLine(line)
	return nil
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() (read, parsed, failed int64) {
	return p.linesRead.Load(), p.linesParsed.Load(), p.linesFailed.Load()
}

// WorkerID returns the run identifier of the worker feeding this pipeline.
func (p *Pipeline) WorkerID() string {
	return p.workerID
}

// StreamType returns "stdout" or "stderr".
func (p *Pipeline) StreamType() string {
	return p.streamType
}

// NoopParser is a parser that does nothing.
type NoopParser struct{}

// ParseLine does nothing.
func (NoopParser) ParseLine(string) {}
