package marker

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// Sentinels returned by Extent.MarkResult in place of a remaining count.
const (
	MarkOutOfRange  int64 = -1
	MarkDuplicate   int64 = -2
	MarkInvalidCode int64 = -3
)

// Extent records one result code per cycle for the range [min,max).
//
// Slots are packed four to a word and written with compare-and-swap, so any number of goroutines may mark
// distinct cycles concurrently and a second write to the same slot is always detected. Segments are read by
// a single logical consumer; reads are serialised internally.
type Extent struct {
	min       int64
	max       int64
	words     []atomic.Uint32
	remaining atomic.Int64

	readMu sync.Mutex
	served int64 // slots already yielded as segments, relative to min
}

func NewExtent(min, max int64) (*Extent, error) {
	if max <= min {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "max",
			Value:   max,
			Message: "extent range must not be empty",
		})
	}
	size := max - min
	e := &Extent{
		min:   min,
		max:   max,
		words: make([]atomic.Uint32, (size+3)/4),
	}
	e.remaining.Store(size)
	return e, nil
}

func (e *Extent) Min() int64 {
	return e.min
}

func (e *Extent) Max() int64 {
	return e.max
}

func (e *Extent) Size() int64 {
	return e.max - e.min
}

// MarkResult records code for cycle and returns the number of slots still unfilled afterwards.
// It returns MarkOutOfRange, MarkDuplicate or MarkInvalidCode instead when nothing was written.
func (e *Extent) MarkResult(cycle int64, code ResultCode) int64 {
	if cycle < e.min || cycle >= e.max {
		return MarkOutOfRange
	}
	if !code.Valid() {
		return MarkInvalidCode
	}
	pos := cycle - e.min
	word := &e.words[pos>>2]
	shift := uint(pos&3) * 8
	slot := uint32(filledBit|byte(code)) << shift
	for {
		old := word.Load()
		if (old>>shift)&0xff != 0 {
			return MarkDuplicate
		}
		if word.CompareAndSwap(old, old|slot) {
			break
		}
	}
	return e.remaining.Add(-1)
}

func (e *Extent) IsFullyFilled() bool {
	return e.remaining.Load() == 0
}

func (e *Extent) Remaining() int64 {
	return e.remaining.Load()
}

// Result returns the code recorded for cycle, if any.
func (e *Extent) Result(cycle int64) (ResultCode, bool) {
	if cycle < e.min || cycle >= e.max {
		return 0, false
	}
	return e.slot(cycle - e.min)
}

func (e *Extent) slot(pos int64) (ResultCode, bool) {
	b := byte(e.words[pos>>2].Load() >> (uint(pos&3) * 8))
	if b&filledBit == 0 {
		return 0, false
	}
	return ResultCode(b &^ filledBit), true
}

// NextSegment returns the filled slots from the lowest unread position up to the first unfilled slot or the
// end of the extent. Each slot is returned at most once across all calls.
func (e *Extent) NextSegment() (Segment, bool) {
	e.readMu.Lock()
	defer e.readMu.Unlock()
	return e.nextSegment()
}

// Segments returns all segments currently available.
func (e *Extent) Segments() []Segment {
	var segments []Segment
	for seg, ok := e.NextSegment(); ok; seg, ok = e.NextSegment() {
		segments = append(segments, seg)
	}
	return segments
}

// remainingSegments returns every filled slot not yet read, skipping over gaps, and marks the whole extent
// as read. Used when flushing at shutdown.
func (e *Extent) remainingSegments() []Segment {
	e.readMu.Lock()
	defer e.readMu.Unlock()
	var segments []Segment
	size := e.Size()
	for e.served < size {
		if seg, ok := e.nextSegment(); ok {
			segments = append(segments, seg)
			continue
		}
		e.served++ // unfilled slot
	}
	return segments
}

func (e *Extent) nextSegment() (Segment, bool) {
	size := e.Size()
	start := e.served
	var codes []ResultCode
	for pos := start; pos < size; pos++ {
		code, filled := e.slot(pos)
		if !filled {
			break
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return Segment{}, false
	}
	e.served += int64(len(codes))
	return Segment{Start: e.min + start, Codes: codes}, true
}

// readPosition is the first cycle that has not been read as part of a segment.
func (e *Extent) readPosition() int64 {
	e.readMu.Lock()
	defer e.readMu.Unlock()
	return e.min + e.served
}

// FirstUnfilled returns the lowest cycle without a result.
func (e *Extent) FirstUnfilled() (int64, bool) {
	if e.IsFullyFilled() {
		return 0, false
	}
	for pos := int64(0); pos < e.Size(); pos++ {
		if _, filled := e.slot(pos); !filled {
			return e.min + pos, true
		}
	}
	return 0, false
}
