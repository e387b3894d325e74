package planning

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// OpSequence selects an element for any cycle number by indexing a fixed schedule.
// It is immutable and safe for concurrent use.
type OpSequence[T any] struct {
	elements []T
	offsets  []int
}

func newOpSequence[T any](elements []T, offsets []int) (*OpSequence[T], error) {
	if len(offsets) == 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "offsets",
			Value:   offsets,
			Message: "an op sequence needs at least one element with a positive ratio",
		})
	}
	for _, offset := range offsets {
		if offset < 0 || offset >= len(elements) {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    "offsets",
				Value:   offset,
				Message: "offset does not refer to one of " + itoa(len(elements)) + " elements",
			})
		}
	}
	return &OpSequence[T]{
		elements: append([]T(nil), elements...),
		offsets:  append([]int(nil), offsets...),
	}, nil
}

// Select returns the element scheduled for the given cycle.
func (s *OpSequence[T]) Select(cycle int64) T {
	return s.elements[s.offsets[positiveModulo(cycle, len(s.offsets))]]
}

// SelectIndex returns the index into Elements of the element scheduled for the given cycle.
func (s *OpSequence[T]) SelectIndex(cycle int64) int {
	return s.offsets[positiveModulo(cycle, len(s.offsets))]
}

// Len is the number of cycles in one full traversal of the schedule.
func (s *OpSequence[T]) Len() int {
	return len(s.offsets)
}

func (s *OpSequence[T]) Elements() []T {
	return append([]T(nil), s.elements...)
}

func (s *OpSequence[T]) Offsets() []int {
	return append([]int(nil), s.offsets...)
}

// Counts returns how many times each element is selected per traversal, indexed like Elements.
func (s *OpSequence[T]) Counts() []int {
	counts := make([]int, len(s.elements))
	for _, offset := range s.offsets {
		counts[offset]++
	}
	return counts
}

// Transform maps every element with f and returns a sequence sharing the same schedule.
// f is called once per element, not once per scheduled slot.
func Transform[T, U any](s *OpSequence[T], f func(T) U) *OpSequence[U] {
	mapped := make([]U, len(s.elements))
	for i, e := range s.elements {
		mapped[i] = f(e)
	}
	return &OpSequence[U]{elements: mapped, offsets: s.offsets}
}

// TryTransform is Transform for mappings that can fail, such as building an op dispenser from a template.
func TryTransform[T, U any](s *OpSequence[T], f func(T) (U, error)) (*OpSequence[U], error) {
	mapped := make([]U, len(s.elements))
	for i, e := range s.elements {
		u, err := f(e)
		if err != nil {
			return nil, err
		}
		mapped[i] = u
	}
	return &OpSequence[U]{elements: mapped, offsets: s.offsets}, nil
}

func positiveModulo(cycle int64, n int) int {
	result := cycle % int64(n)
	if result < 0 {
		result += int64(n)
	}
	return int(result)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
