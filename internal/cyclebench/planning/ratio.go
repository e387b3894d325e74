package planning

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// RatioItem pairs an element with its relative selection weight.
type RatioItem[T any] struct {
	Element T
	Ratio   int
}

// BuildSchedule returns the index of each element, repeated ratio times, in round-robin drain order.
// Elements with a ratio of zero never appear. If every ratio is zero the schedule is empty.
func BuildSchedule(ratios []int) ([]int, error) {
	total := 0
	for i, ratio := range ratios {
		if ratio < 0 {
			return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
				Name:    "ratios",
				Value:   ratios,
				Message: "ratio at position " + itoa(i) + " is negative",
			})
		}
		total += ratio
	}

	type bucket struct {
		index  int
		tokens int
	}
	buckets := make([]bucket, 0, len(ratios))
	for i, ratio := range ratios {
		if ratio > 0 {
			buckets = append(buckets, bucket{index: i, tokens: ratio})
		}
	}

	schedule := make([]int, 0, total)
	for len(buckets) > 0 {
		remaining := buckets[:0]
		for _, b := range buckets {
			schedule = append(schedule, b.index)
			b.tokens--
			if b.tokens > 0 {
				remaining = append(remaining, b)
			}
		}
		buckets = remaining
	}
	return schedule, nil
}

// NewOpSequence builds an OpSequence selecting elements[i] ratios[i] times per traversal.
func NewOpSequence[T any](elements []T, ratios []int) (*OpSequence[T], error) {
	if len(elements) != len(ratios) {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "ratios",
			Value:   ratios,
			Message: "got " + itoa(len(ratios)) + " ratios for " + itoa(len(elements)) + " elements",
		})
	}
	schedule, err := BuildSchedule(ratios)
	if err != nil {
		return nil, err
	}
	return newOpSequence(elements, schedule)
}

// NewOpSequenceFromItems builds an OpSequence from element and ratio pairs.
func NewOpSequenceFromItems[T any](items []RatioItem[T]) (*OpSequence[T], error) {
	elements := make([]T, len(items))
	ratios := make([]int, len(items))
	for i, item := range items {
		elements[i] = item.Element
		ratios[i] = item.Ratio
	}
	return NewOpSequence(elements, ratios)
}
