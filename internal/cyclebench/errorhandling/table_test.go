package errorhandling

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

type loopA interface {
	error
	Loop()
}

type loopB interface {
	error
	Loop()
}

func TestBuild_Builtins(t *testing.T) {
	table, err := NewKindRegistry().Build()
	require.NoError(t, err)

	for _, name := range []string{KindTimeout, KindNetwork, KindDeadlineExceeded, KindCanceled, KindUnverified, KindUnapplied} {
		_, ok := table.Get(name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, []string{KindTimeout}, table.Ancestors(KindNetwork))
	assert.Equal(t, []string{KindTimeout}, table.Ancestors(KindDeadlineExceeded))
	assert.Empty(t, table.Ancestors(KindTimeout))
}

func TestBuild_RejectsInconsistentRegistrations(t *testing.T) {
	tests := map[string]struct {
		register func(r *KindRegistry)
		errText  string
	}{
		"unknown parent": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: "a", Parent: "missing", Code: 50})
			},
			errText: `parent "missing" is not registered`,
		},
		"type does not satisfy parent": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: "a", Parent: KindTimeout, Code: 50})
			},
			errText: "does not satisfy",
		},
		"code reused": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: "a", Code: 10})
			},
			errText: "already used by",
		},
		"reserved code": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: "a", Code: CodeBindFailure})
			},
			errText: "outside 1..125",
		},
		"duplicate name": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: KindTimeout, Code: 50})
			},
			errText: "registered more than once",
		},
		"duplicate type": {
			register: func(r *KindRegistry) {
				Register[*overloadedError](r, KindSpec{Name: "a", Code: 50})
				Register[*overloadedError](r, KindSpec{Name: "b", Code: 51})
			},
			errText: "is already registered as",
		},
		"parent loop": {
			register: func(r *KindRegistry) {
				Register[loopA](r, KindSpec{Name: "a", Parent: "b", Code: 50})
				Register[loopB](r, KindSpec{Name: "b", Parent: "a", Code: 51})
			},
			errText: "loops through",
		},
		"nil sentinel": {
			register: func(r *KindRegistry) {
				r.RegisterSentinel(KindSpec{Name: "a", Code: 50}, nil)
			},
			errText: "must not be nil",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewKindRegistry()
			tc.register(r)
			_, err := r.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
			assert.True(t, benchmarkerrors.IsConfigurationDefect(err))
		})
	}
}

func TestLookup(t *testing.T) {
	table := testTable(t)

	kind, ok := table.Lookup(&overloadedError{})
	require.True(t, ok)
	assert.Equal(t, "backend.Overloaded", kind.Name)

	kind, ok = table.Lookup(context.DeadlineExceeded)
	require.True(t, ok)
	assert.Equal(t, KindDeadlineExceeded, kind.Name, "sentinels win over interfaces")

	kind, ok = table.Lookup(backendTimeoutError{})
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind.Name)

	kind, ok = table.Lookup(&net.OpError{Op: "dial", Err: plainError{}})
	require.True(t, ok)
	assert.Equal(t, KindNetwork, kind.Name, "most specific interface wins")

	_, ok = table.Lookup(plainError{})
	assert.False(t, ok)
	_, ok = table.Lookup(plainError{}) // cached
	assert.False(t, ok)
	_, ok = table.Lookup(nil)
	assert.False(t, ok)
}
