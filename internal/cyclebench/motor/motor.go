package motor

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/tevino/abool"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
	"github.com/armadaproject/cyclebench/internal/cyclebench/planning"
)

// Input hands out cycles. It is shared by every motor of an activity.
type Input interface {
	Next(ctx context.Context) (int64, bool)
}

// Output records the result code of each cycle.
type Output interface {
	OnCycleResult(ctx context.Context, cycle int64, code marker.ResultCode) error
}

// Observer is told about every cycle a motor completes.
type Observer interface {
	ObserveCycle(op string, code marker.ResultCode, tries int, elapsed time.Duration)
}

type Config struct {
	// Tries per cycle, including the first.
	MaxTries      int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxTries:      10,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: time.Second,
	}
}

// Dependencies are the objects a motor shares with the rest of its activity.
type Dependencies struct {
	Input    Input
	Sequence *planning.OpSequence[ops.OpDispenser]
	Output   Output
	Handler  *errorhandling.Handler
	// Set when the run should end. Motors finish their current cycle and return.
	Stop     *abool.AtomicBool
	Tally    *RunStateTally
	Observer Observer
}

// Motor is one worker loop: take a cycle, run its op until it succeeds or may not be tried again, and record
// the outcome. A motor holds no state shared with other motors except through its dependencies.
type Motor struct {
	slot     int
	deps     Dependencies
	config   Config
	handler  *errorhandling.WorkerHandler
	state    RunState
	complete int64
}

func NewMotor(slot int, deps Dependencies, config Config) (*Motor, error) {
	if config.MaxTries < 1 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "maxTries",
			Value:   config.MaxTries,
			Message: "must be at least 1",
		})
	}
	if deps.Input == nil || deps.Sequence == nil || deps.Output == nil || deps.Handler == nil || deps.Stop == nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "deps",
			Value:   slot,
			Message: "input, sequence, output, handler and stop are required",
		})
	}
	m := &Motor{
		slot:    slot,
		deps:    deps,
		config:  config,
		handler: deps.Handler.ForWorker(slot),
		state:   Starting,
	}
	if deps.Tally != nil {
		deps.Tally.Add()
	}
	return m, nil
}

func (m *Motor) Slot() int {
	return m.slot
}

func (m *Motor) State() RunState {
	return m.state
}

// Completed is the number of cycles whose result this motor recorded.
func (m *Motor) Completed() int64 {
	return m.complete
}

// Run loops until the input is exhausted, the run is stopped or ctx ends. Those all return nil. A non-nil error
// means a defect that must end the whole activity.
func (m *Motor) Run(ctx context.Context) error {
	log := logging.WithField("motor", m.slot)
	m.setState(Running)
	for {
		if m.deps.Stop.IsSet() || ctx.Err() != nil {
			m.setState(Stopped)
			log.Debugf("Stopped after %d cycles", m.complete)
			return nil
		}
		cycle, ok := m.deps.Input.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				m.setState(Stopped)
			} else {
				m.setState(Finished)
			}
			log.Debugf("Input exhausted after %d cycles", m.complete)
			return nil
		}

		code, recorded, err := m.runCycle(ctx, cycle)
		if err != nil {
			m.setState(Errored)
			return err
		}
		if !recorded {
			continue
		}
		if err := m.deps.Output.OnCycleResult(ctx, cycle, code); err != nil {
			if ctx.Err() != nil || errors.Is(err, marker.ErrChunkerClosed) {
				m.setState(Stopped)
				return nil
			}
			m.setState(Errored)
			return errors.WithMessagef(err, "motor %d recording cycle %d", m.slot, cycle)
		}
		m.complete++
	}
}

// runCycle runs the op for cycle. recorded is false if ctx ended before the cycle had an outcome.
func (m *Motor) runCycle(ctx context.Context, cycle int64) (code marker.ResultCode, recorded bool, err error) {
	dispenser := m.deps.Sequence.Select(cycle)
	op, err := dispenser.Op(cycle)
	if err != nil {
		m.deps.Stop.Set()
		if recordErr := m.deps.Output.OnCycleResult(ctx, cycle, errorhandling.CodeBindFailure); recordErr != nil {
			logging.WithError(recordErr).Warnf("Could not record bind failure of cycle %d", cycle)
		}
		return errorhandling.CodeBindFailure, false, errors.WithMessagef(err, "binding op %s for cycle %d", dispenser.Name(), cycle)
	}

	var status errorhandling.ErrorStatus
	var defect error
	handled, interrupted := false, false
	tries := 0
	start := time.Now()
	err = retry.Do(
		func() error {
			tries++
			_, err := op.Apply(ctx)
			return err
		},
		retry.Attempts(uint(m.config.MaxTries)),
		retry.Delay(m.config.RetryDelay),
		retry.MaxDelay(m.config.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				interrupted = true
				return false
			}
			handled = true
			status, defect = m.handler.Handle(cycle, err, fmt.Sprintf("op %s failed on try %d of cycle %d", dispenser.Name(), tries, cycle))
			if defect != nil {
				return false
			}
			return status.Retryable && !m.deps.Stop.IsSet()
		}),
	)
	elapsed := time.Since(start)
	if defect != nil {
		return status.ResultCode, false, defect
	}
	if err == nil {
		code = errorhandling.CodeOK
	} else if interrupted || !handled {
		return 0, false, nil
	} else {
		code = status.ResultCode
	}
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveCycle(dispenser.Name(), code, tries, elapsed)
	}
	return code, true, nil
}

func (m *Motor) setState(state RunState) {
	if m.deps.Tally != nil {
		m.deps.Tally.Change(m.state, state)
	}
	m.state = state
}
