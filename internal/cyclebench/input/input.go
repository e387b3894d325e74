package input

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// AtomicInput hands out each cycle in [min,max) exactly once, in ascending order, to any number of callers.
type AtomicInput struct {
	cycles  CycleRange
	next    atomic.Int64
	limiter *rate.Limiter
}

// NewAtomicInput returns an input over cycles. A nil limiter means cycles are handed out as fast as they are
// asked for.
func NewAtomicInput(cycles CycleRange, limiter *rate.Limiter) *AtomicInput {
	in := &AtomicInput{
		cycles:  cycles,
		limiter: limiter,
	}
	in.next.Store(cycles.Min)
	return in
}

// Next returns the next cycle. It returns false once every cycle has been taken, or if ctx ends while waiting
// on the rate limiter.
func (in *AtomicInput) Next(ctx context.Context) (int64, bool) {
	if in.next.Load() >= in.cycles.Max {
		return 0, false
	}
	if in.limiter != nil {
		if err := in.limiter.Wait(ctx); err != nil {
			return 0, false
		}
	}
	cycle := in.next.Add(1) - 1
	if cycle >= in.cycles.Max {
		return 0, false
	}
	return cycle, true
}

// Taken is the number of cycles handed out so far.
func (in *AtomicInput) Taken() int64 {
	next := in.next.Load()
	if next > in.cycles.Max {
		next = in.cycles.Max
	}
	return next - in.cycles.Min
}

// Exhausted is true once every cycle has been handed out.
func (in *AtomicInput) Exhausted() bool {
	return in.next.Load() >= in.cycles.Max
}

func (in *AtomicInput) Range() CycleRange {
	return in.cycles
}
