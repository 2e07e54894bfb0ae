package pipeline

import (
	"fmt"
	"io"
)

// Tracer receives human-readable trace lines from pipeline components.
type Tracer interface {
	Tracef(format string, args ...any)
}

type nopTracer struct{}

func (nopTracer) Tracef(string, ...any) {}

func tracerOrNop(t Tracer) Tracer {
	if t == nil {
		return nopTracer{}
	}
	return t
}

// Trace collects trace lines and optionally mirrors each line to a writer
// as it is produced. Lines are for display only.
type Trace struct {
	enabled bool
	writer  io.Writer
	lines   []string
}

// NewTrace creates a trace. A disabled trace drops every line.
func NewTrace(enabled bool, writer io.Writer) *Trace {
	return &Trace{enabled: enabled, writer: writer}
}

// Tracef formats and records one line.
func (t *Trace) Tracef(format string, args ...any) {
	if !t.enabled {
		return
	}

	line := fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)

	if t.writer != nil {
		_, _ = fmt.Fprintln(t.writer, line)
	}
}

// Enabled reports whether lines are being recorded.
func (t *Trace) Enabled() bool {
	return t.enabled
}

// Lines returns a copy of the recorded lines.
func (t *Trace) Lines() []string {
	lines := make([]string, len(t.lines))
	copy(lines, t.lines)
	return lines
}

// Reset drops all recorded lines.
func (t *Trace) Reset() {
	t.lines = nil
}
