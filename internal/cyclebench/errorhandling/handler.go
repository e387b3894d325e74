package errorhandling

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tevino/abool"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// ErrorStatus is the outcome of handling one failed try.
type ErrorStatus struct {
	Cycle      int64
	Group      string
	Kind       string
	ResultCode marker.ResultCode
	// The op may be tried again if tries remain.
	Retryable bool
	// The run has been asked to stop.
	Stop bool
}

func (s ErrorStatus) String() string {
	return fmt.Sprintf("cycle=%d group=%s kind=%s code=%d", s.Cycle, s.Group, s.Kind, s.ResultCode)
}

// ErrorRecorder receives errors handled with the count verb.
type ErrorRecorder interface {
	RecordError(group string, kind string)
}

// Handler applies group policies to op failures. It is shared by all workers.
type Handler struct {
	classifier *Classifier
	stop       *abool.AtomicBool
	recorder   ErrorRecorder

	countersMu sync.Mutex
	counters   atomic.Pointer[map[string]*atomic.Int64]

	workersMu sync.Mutex
	workers   []*WorkerHandler
}

// NewHandler returns a handler that sets stop when a policy says the run should end.
func NewHandler(classifier *Classifier, stop *abool.AtomicBool, recorder ErrorRecorder) *Handler {
	h := &Handler{
		classifier: classifier,
		stop:       stop,
		recorder:   recorder,
	}
	counters := make(map[string]*atomic.Int64)
	h.counters.Store(&counters)
	return h
}

func (h *Handler) Classifier() *Classifier {
	return h.classifier
}

// Handle classifies err, applies the policy of its group and returns the resulting status. The returned error is
// non-nil only when the group has no policy, which is a configuration bug and must end the run.
func (h *Handler) Handle(cycle int64, err error, message string) (ErrorStatus, error) {
	classification := h.classifier.ClassifyDetailed(err)
	status := ErrorStatus{
		Cycle:      cycle,
		Group:      classification.Group,
		Kind:       kindName(classification.Kind, err),
		ResultCode: CodeUnclassified,
	}
	if classification.Kind != nil {
		status.ResultCode = classification.Kind.Code
	}
	h.counter(status.Group).Add(1)

	policy, ok := h.classifier.Policy(status.Group)
	if !ok {
		status.ResultCode = CodeUnclassified
		status.Stop = true
		h.stop.Set()
		return status, errors.WithStack(&benchmarkerrors.ErrUnclassifiable{
			Kind:    status.Kind,
			Group:   status.Group,
			Message: message,
		})
	}

	if policy.Code != nil {
		status.ResultCode = *policy.Code
	}
	if policy.Count && h.recorder != nil {
		h.recorder.RecordError(status.Group, status.Kind)
	}
	if policy.Ignore {
		return status, nil
	}
	status.Retryable = policy.Retry
	if policy.Warn {
		logging.
			WithFields(map[string]any{
				"cycle": cycle,
				"group": status.Group,
				"kind":  status.Kind,
			}).
			WithError(err).
			Warn(message)
	}
	if policy.Stop {
		status.Stop = true
		if h.stop.SetToIf(false, true) {
			logging.
				WithFields(map[string]any{"cycle": cycle, "group": status.Group, "kind": status.Kind}).
				WithStacktrace(err).
				Errorf("Stopping run: %s", message)
		}
	}
	return status, nil
}

// Counts returns the number of errors handled per group. Groups that saw no errors are omitted.
func (h *Handler) Counts() map[string]int64 {
	counts := make(map[string]int64)
	for group, counter := range *h.counters.Load() {
		if n := counter.Load(); n > 0 {
			counts[group] = n
		}
	}
	return counts
}

func (h *Handler) counter(group string) *atomic.Int64 {
	if counter, ok := (*h.counters.Load())[group]; ok {
		return counter
	}
	h.countersMu.Lock()
	defer h.countersMu.Unlock()
	current := *h.counters.Load()
	if counter, ok := current[group]; ok {
		return counter
	}
	next := make(map[string]*atomic.Int64, len(current)+1)
	for name, counter := range current {
		next[name] = counter
	}
	counter := &atomic.Int64{}
	next[group] = counter
	h.counters.Store(&next)
	return counter
}

// ForWorker returns a handler for one worker that remembers the last status it produced.
func (h *Handler) ForWorker(slot int) *WorkerHandler {
	w := &WorkerHandler{Handler: h, slot: slot}
	h.workersMu.Lock()
	h.workers = append(h.workers, w)
	h.workersMu.Unlock()
	return w
}

// LastStatuses returns the last status of every worker that has handled an error, by worker slot.
func (h *Handler) LastStatuses() map[int]ErrorStatus {
	h.workersMu.Lock()
	defer h.workersMu.Unlock()
	statuses := make(map[int]ErrorStatus)
	for _, w := range h.workers {
		if last, ok := w.Last(); ok {
			statuses[w.slot] = last
		}
	}
	return statuses
}

// WorkerHandler is a Handler bound to a single worker.
type WorkerHandler struct {
	*Handler
	slot int
	last atomic.Pointer[ErrorStatus]
}

func (w *WorkerHandler) Handle(cycle int64, err error, message string) (ErrorStatus, error) {
	status, handleErr := w.Handler.Handle(cycle, err, message)
	w.last.Store(&status)
	return status, handleErr
}

// Last returns the most recent status produced for this worker.
func (w *WorkerHandler) Last() (ErrorStatus, bool) {
	last := w.last.Load()
	if last == nil {
		return ErrorStatus{}, false
	}
	return *last, true
}

func kindName(kind *Kind, err error) string {
	if kind != nil {
		return kind.Name
	}
	if err == nil {
		return "nil"
	}
	return reflect.TypeOf(stripAnnotations(err)).String()
}

// SortedGroups returns the keys of counts in a stable order.
func SortedGroups(counts map[string]int64) []string {
	groups := maps.Keys(counts)
	slices.Sort(groups)
	return groups
}
