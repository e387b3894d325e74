package ops

import (
	"context"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
)

// Op is one bound operation, ready to run against a backend.
type Op interface {
	Apply(ctx context.Context) (any, error)
}

// OpFunc adapts a function to Op.
type OpFunc func(ctx context.Context) (any, error)

func (f OpFunc) Apply(ctx context.Context) (any, error) {
	return f(ctx)
}

// OpDispenser builds the op for a cycle. Dispensers are shared by every worker, so Op must be safe to call
// concurrently for different cycles.
type OpDispenser interface {
	Name() string
	Op(cycle int64) (Op, error)
}

// Driver connects to one kind of backend and turns op templates into dispensers.
type Driver interface {
	Name() string
	// RegisterKinds adds the error kinds this driver can produce.
	RegisterKinds(r *errorhandling.KindRegistry)
	NewDispenser(template OpTemplate) (OpDispenser, error)
	Close() error
}
