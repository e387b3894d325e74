// Package diag is a driver that talks to no backend. Ops sleep for a configured latency and fail on a
// deterministic schedule of cycles, which makes it useful for testing error handling and for measuring the
// overhead of the harness itself.
package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const Name = "diag"

// Error kinds produced by this driver.
const (
	KindTimeout  = "diag.Timeout"
	KindRejected = "diag.Rejected"
)

// TimeoutError is returned for cycles scheduled to time out. It is retryable.
type TimeoutError struct {
	Cycle int64
	Try   int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("diag: cycle %d timed out on try %d", e.Cycle, e.Try)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// RejectedError is returned for cycles scheduled to be rejected. It belongs to no group.
type RejectedError struct {
	Cycle int64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("diag: cycle %d rejected", e.Cycle)
}

type Config struct {
	// Added to every op.
	Latency time.Duration
}

type Driver struct {
	config Config
}

func New(settings map[string]any) (ops.Driver, error) {
	var config Config
	if err := ops.DecodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &Driver{config: config}, nil
}

func (d *Driver) Name() string {
	return Name
}

func (d *Driver) RegisterKinds(r *errorhandling.KindRegistry) {
	errorhandling.Register[*TimeoutError](r, errorhandling.KindSpec{
		Name:   KindTimeout,
		Parent: errorhandling.KindTimeout,
		Code:   30,
	})
	errorhandling.Register[*RejectedError](r, errorhandling.KindSpec{Name: KindRejected, Code: 31})
}

// NewDispenser understands these template fields, all optional:
//
//	result           value the op returns, default "{cycle}"
//	latency          overrides the driver latency, e.g. "5ms"
//	timeout_every    every Nth cycle times out
//	timeout_tries    number of tries that time out before the cycle succeeds, default 1
//	mismatch_every   every Nth cycle returns a corrupted result
//	unapplied_every  every Nth cycle is reported as not applied
//	reject_every     every Nth cycle is rejected
func (d *Driver) NewDispenser(template ops.OpTemplate) (ops.OpDispenser, error) {
	dispenser := &dispenser{
		name:    template.Name,
		result:  ops.NewBinding("{cycle}"),
		latency: d.config.Latency,
	}
	if result, ok := template.Field("result"); ok {
		dispenser.result = result
	}
	if latency, ok := template.Fields["latency"]; ok {
		parsed, err := time.ParseDuration(latency)
		if err != nil {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    template.Name + ".op.latency",
				Value:   latency,
				Message: "must be a duration",
			})
		}
		dispenser.latency = parsed
	}

	var err error
	fields := []struct {
		name   string
		target *int64
		def    int64
	}{
		{"timeout_every", &dispenser.timeoutEvery, 0},
		{"timeout_tries", &dispenser.timeoutTries, 1},
		{"mismatch_every", &dispenser.mismatchEvery, 0},
		{"unapplied_every", &dispenser.unappliedEvery, 0},
		{"reject_every", &dispenser.rejectEvery, 0},
	}
	for _, field := range fields {
		if *field.target, err = template.IntField(field.name, field.def); err != nil {
			return nil, err
		}
		if *field.target < 0 {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    template.Name + ".op." + field.name,
				Value:   *field.target,
				Message: "must not be negative",
			})
		}
	}
	return dispenser, nil
}

func (d *Driver) Close() error {
	return nil
}

type dispenser struct {
	name           string
	result         ops.Binding
	latency        time.Duration
	timeoutEvery   int64
	timeoutTries   int64
	mismatchEvery  int64
	unappliedEvery int64
	rejectEvery    int64
}

func (d *dispenser) Name() string {
	return d.name
}

func (d *dispenser) Op(cycle int64) (ops.Op, error) {
	return &op{dispenser: d, cycle: cycle, result: d.result.Bind(cycle)}, nil
}

// op is built per cycle and reused for every try of that cycle.
type op struct {
	dispenser *dispenser
	cycle     int64
	result    string
	tries     int64
}

func (o *op) Apply(ctx context.Context) (any, error) {
	o.tries++
	d := o.dispenser
	if d.latency > 0 {
		select {
		case <-time.After(d.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	switch {
	case every(o.cycle, d.rejectEvery):
		return nil, &RejectedError{Cycle: o.cycle}
	case every(o.cycle, d.timeoutEvery) && o.tries <= d.timeoutTries:
		return nil, &TimeoutError{Cycle: o.cycle, Try: o.tries}
	case every(o.cycle, d.unappliedEvery):
		return nil, &errorhandling.UnappliedError{Cycle: o.cycle, Reason: "diag"}
	case every(o.cycle, d.mismatchEvery):
		return "mismatch-" + o.result, nil
	}
	return o.result, nil
}

// every is true for the last cycle of each block of n.
func every(cycle int64, n int64) bool {
	return n > 0 && cycle%n == n-1
}
