package track

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by SampleStore implementations.
var (
	ErrRawSampleNotFound = errors.New("raw sample not found")
	ErrNoProcessedSample = errors.New("no processed sample for device")
)

// Kind classifies a processing failure for retry policy.
type Kind string

const (
	// KindInputAbsent covers a raw sample id unknown to storage,
	// typically a job delivered before its write became visible.
	KindInputAbsent Kind = "input_absent"

	// KindStorage covers transient storage read/write failures.
	KindStorage Kind = "storage"

	// KindInvariant covers inputs the pipeline must never emit,
	// such as NaN coordinates. Retrying cannot fix these.
	KindInvariant Kind = "invariant"
)

// Error is a classified processor failure. The queue inspects
// Retriable to decide between redelivery and the dead letter store.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("track: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("track: %s (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether redelivering the job could succeed.
func (e *Error) Retriable() bool { return e.Kind != KindInvariant }

func storageErr(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}
