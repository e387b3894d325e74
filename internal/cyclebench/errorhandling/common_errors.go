package errorhandling

import (
	"context"
	"fmt"
)

// Names of the kinds registered for every driver.
const (
	KindTimeout          = "timeout"
	KindNetwork          = "net.Error"
	KindDeadlineExceeded = "context.DeadlineExceeded"
	KindCanceled         = "context.Canceled"
	KindUnverified       = "unverified"
	KindUnapplied        = "unapplied"
)

// Timeout is implemented by errors that can report whether they were caused by a timeout.
type Timeout interface {
	error
	Timeout() bool
}

var (
	contextDeadlineExceeded error = context.DeadlineExceeded
	contextCanceled         error = context.Canceled
)

// UnverifiedError is returned when an op succeeded but its result did not match what was expected.
type UnverifiedError struct {
	Cycle    int64
	Expected string
	Actual   string
}

func (e *UnverifiedError) Error() string {
	return fmt.Sprintf("cycle %d: expected %q but got %q", e.Cycle, e.Expected, e.Actual)
}

// UnappliedError is returned when a backend accepted an op but reported that it had no effect,
// e.g. a conditional write whose condition did not hold.
type UnappliedError struct {
	Cycle  int64
	Reason string
}

func (e *UnappliedError) Error() string {
	return fmt.Sprintf("cycle %d was not applied: %s", e.Cycle, e.Reason)
}
