package ops

import (
	"context"
	"fmt"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
)

// WithVerification wraps a dispenser so that each op's result is compared with the bound expected value.
// A mismatch fails the op with an errorhandling.UnverifiedError.
func WithVerification(dispenser OpDispenser, expected string) OpDispenser {
	if expected == "" {
		return dispenser
	}
	return &verifyingDispenser{delegate: dispenser, expected: NewBinding(expected)}
}

type verifyingDispenser struct {
	delegate OpDispenser
	expected Binding
}

func (d *verifyingDispenser) Name() string {
	return d.delegate.Name()
}

func (d *verifyingDispenser) Op(cycle int64) (Op, error) {
	op, err := d.delegate.Op(cycle)
	if err != nil {
		return nil, err
	}
	expected := d.expected.Bind(cycle)
	return OpFunc(func(ctx context.Context) (any, error) {
		result, err := op.Apply(ctx)
		if err != nil {
			return result, err
		}
		if actual := fmt.Sprint(result); actual != expected {
			return result, &errorhandling.UnverifiedError{Cycle: cycle, Expected: expected, Actual: actual}
		}
		return result, nil
	}), nil
}
