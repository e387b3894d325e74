package motor

import (
	"sync"
	"sync/atomic"
)

// RunState is the lifecycle state of one motor.
type RunState int

const (
	Starting RunState = iota
	Running
	// Input exhausted.
	Finished
	// Left the loop early because the run was asked to stop.
	Stopped
	// Left the loop because of a fatal error.
	Errored
	numRunStates
)

var runStateNames = [numRunStates]string{"starting", "running", "finished", "stopped", "errored"}

func (s RunState) String() string {
	if s < 0 || s >= numRunStates {
		return "unknown"
	}
	return runStateNames[s]
}

// Terminal is true for states a motor never leaves.
func (s RunState) Terminal() bool {
	return s == Finished || s == Stopped || s == Errored
}

// RunStateTally counts motors by state.
type RunStateTally struct {
	counts [numRunStates]atomic.Int64

	mu      sync.Mutex
	changed chan struct{}
}

func NewRunStateTally() *RunStateTally {
	return &RunStateTally{changed: make(chan struct{})}
}

// Add counts a new motor in the starting state.
func (t *RunStateTally) Add() {
	t.counts[Starting].Add(1)
	t.notify()
}

// Change moves one motor from one state to another.
func (t *RunStateTally) Change(from, to RunState) {
	if from == to {
		return
	}
	t.counts[from].Add(-1)
	t.counts[to].Add(1)
	t.notify()
}

func (t *RunStateTally) Count(state RunState) int64 {
	return t.counts[state].Load()
}

// Total is the number of motors counted in any state.
func (t *RunStateTally) Total() int64 {
	var total int64
	for i := range t.counts {
		total += t.counts[i].Load()
	}
	return total
}

// Active is the number of motors not yet in a terminal state.
func (t *RunStateTally) Active() int64 {
	return t.Count(Starting) + t.Count(Running)
}

// Snapshot returns the count of every state that has at least one motor.
func (t *RunStateTally) Snapshot() map[string]int64 {
	snapshot := make(map[string]int64)
	for state := RunState(0); state < numRunStates; state++ {
		if count := t.Count(state); count > 0 {
			snapshot[state.String()] = count
		}
	}
	return snapshot
}

// Changed returns a channel that is closed at the next state change.
func (t *RunStateTally) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

func (t *RunStateTally) notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(t.changed)
	t.changed = make(chan struct{})
}
