package parser

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// PipeReader reads lines from a worker pipe into a Pipeline.
type PipeReader struct {
	reader   io.Reader
	pipeline *Pipeline
	closed   atomic.Bool

	bytesRead atomic.Int64
	linesRead atomic.Int64

	errMu sync.Mutex
	err   error
}

// NewPipeReader creates a reader over r, typically cmd.StdoutPipe().
func NewPipeReader(r io.Reader, pipeline *Pipeline) *PipeReader {
	return &PipeReader{
		reader:   r,
		pipeline: pipeline,
	}
}

// Run reads lines until EOF or a stream error, then closes the pipeline
// channel. Blocks; run it in its own goroutine.
func (p *PipeReader) Run() {
	defer p.pipeline.CloseChannel()

	scanner := bufio.NewScanner(p.reader)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1))
		p.linesRead.Add(1)
		p.pipeline.FeedLine(line)
	}

	if err := scanner.Err(); err != nil && !p.closed.Load() {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
	}
}

// Err returns the stream error that stopped Run, or nil on clean EOF.
// bufio.ErrTooLong is reported here for over-long lines.
func (p *PipeReader) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Close marks the reader as closed so a read error caused by the pipe
// being torn down is not reported.
func (p *PipeReader) Close() error {
	p.closed.Store(true)
	return nil
}

// Stats returns (bytesRead, linesRead, healthy).
func (p *PipeReader) Stats() (bytesRead int64, linesRead int64, healthy bool) {
	return p.bytesRead.Load(), p.linesRead.Load(), !p.closed.Load() && p.Err() == nil
}
