package jobqueue

import (
	"bytes"
	"strings"
	"testing"
)

func TestDebugStreams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	defer SetLogWriters(nil, nil, nil)

	opsf("queue started: %d workers", 10)
	diagf("job %s retrying", "j1")
	tracef("job %s completed", "j1")

	if got := ops.String(); !strings.Contains(got, "[jobqueue] ") || !strings.Contains(got, "10 workers") {
		t.Errorf("ops stream = %q", got)
	}
	if got := diag.String(); !strings.Contains(got, "j1 retrying") {
		t.Errorf("diag stream = %q", got)
	}
	if got := trace.String(); !strings.Contains(got, "j1 completed") {
		t.Errorf("trace stream = %q", got)
	}
}

func TestDebugStreamsOff(t *testing.T) {
	SetLogWriters(nil, nil, nil)

	// All three no-op without writers.
	opsf("quiet")
	diagf("quiet")
	tracef("quiet")
}
