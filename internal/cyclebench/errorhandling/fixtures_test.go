package errorhandling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type backendTimeoutError struct{}

func (backendTimeoutError) Error() string { return "backend timed out" }
func (backendTimeoutError) Timeout() bool { return true }

type overloadedError struct{ Shard int }

func (e *overloadedError) Error() string { return "shard overloaded" }

// wrapperError wraps another error without being registered itself.
type wrapperError struct{ cause error }

func (e *wrapperError) Error() string { return "wrapper: " + e.cause.Error() }
func (e *wrapperError) Unwrap() error { return e.cause }

type plainError struct{}

func (plainError) Error() string { return "plain" }

func testTable(t *testing.T) *KindTable {
	r := NewKindRegistry()
	Register[*overloadedError](r, KindSpec{Name: "backend.Overloaded", Code: 40, Group: GroupRetryable})
	table, err := r.Build()
	require.NoError(t, err)
	return table
}

func testClassifier(t *testing.T) *Classifier {
	c, err := NewClassifier(testTable(t))
	require.NoError(t, err)
	return c
}
