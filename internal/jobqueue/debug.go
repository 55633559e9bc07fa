package jobqueue

import (
	"io"
	"log"
)

// Three debug streams, all off until SetLogWriters installs writers.
// ops carries queue lifecycle and dead-lettered jobs, diag carries
// retry decisions, trace carries per-job telemetry.
var streams struct {
	ops, diag, trace *log.Logger
}

// SetLogWriters installs the debug stream writers. A nil writer leaves
// that stream off.
func SetLogWriters(ops, diag, trace io.Writer) {
	streams.ops = newStream(ops)
	streams.diag = newStream(diag)
	streams.trace = newStream(trace)
}

func newStream(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[jobqueue] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if streams.ops != nil {
		streams.ops.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if streams.diag != nil {
		streams.diag.Printf(format, args...)
	}
}

func tracef(format string, args ...interface{}) {
	if streams.trace != nil {
		streams.trace.Printf(format, args...)
	}
}
