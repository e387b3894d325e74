package marker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/logging"
)

const (
	// DefaultMaxExtents is the number of extents held in the marking window.
	DefaultMaxExtents = 3
	// MaxExtentSize caps the number of slots in a single extent.
	MaxExtentSize = 2_000_000
)

// ErrChunkerClosed is returned to markers still waiting for the window to advance when the chunker is closed.
var ErrChunkerClosed = errors.New("output chunker is closed")

// SegmentSink receives resolved segments in ascending cycle order. A sink that also implements io.Closer is
// closed when the chunker is closed.
type SegmentSink interface {
	OnSegment(segment Segment) error
}

// ChunkerStatus is a point in time summary of a chunker.
type ChunkerStatus struct {
	Min int64
	Max int64
	// All cycles below Watermark are resolved and have been delivered to sinks.
	Watermark int64
	// Number of results recorded.
	Marked int64
	// Highest cycle with a result, or Min-1 if nothing has been recorded.
	HighestMarked int64
}

// Stalled is true when some cycle below the highest recorded cycle has no result.
func (s ChunkerStatus) Stalled() bool {
	return s.Watermark <= s.HighestMarked
}

// Complete is true once every cycle in [Min,Max) has a result.
func (s ChunkerStatus) Complete() bool {
	return s.Watermark >= s.Max
}

type window struct {
	extents []*Extent
	base    int64 // first cycle of extents[0]
	end     int64 // first cycle after the last extent
}

// ContiguousOutputChunker tracks results for [min,max) using a sliding window of extents. Results may arrive
// in any order. Whenever the lowest extent becomes fully filled it is handed to the sinks and retired, and a new
// extent is opened at the top of the window. A result beyond the window blocks until the window reaches it.
type ContiguousOutputChunker struct {
	min        int64
	max        int64
	extentSize int64
	maxExtents int

	window        atomic.Pointer[window]
	marked        atomic.Int64
	highestMarked atomic.Int64
	waiting       atomic.Int64

	mu        sync.Mutex
	sinks     []SegmentSink
	advanced  chan struct{}
	watermark int64
	closed    bool
	sinkErr   error
}

func NewContiguousOutputChunker(min, max int64, extentSize int64, maxExtents int, sinks ...SegmentSink) (*ContiguousOutputChunker, error) {
	if max < min {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "max",
			Value:   max,
			Message: "must not be less than min",
		})
	}
	if extentSize <= 0 || extentSize > MaxExtentSize {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "extentSize",
			Value:   extentSize,
			Message: "must be between 1 and 2000000",
		})
	}
	if maxExtents <= 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "maxExtents",
			Value:   maxExtents,
			Message: "must be positive",
		})
	}
	c := &ContiguousOutputChunker{
		min:        min,
		max:        max,
		extentSize: extentSize,
		maxExtents: maxExtents,
		sinks:      sinks,
		advanced:   make(chan struct{}),
		watermark:  min,
	}
	c.highestMarked.Store(min - 1)
	extents, end, err := c.extend(nil, min)
	if err != nil {
		return nil, err
	}
	c.window.Store(newWindow(extents, end))
	logging.
		WithField("extents", maxExtents).
		WithField("extentSize", extentSize).
		Debugf("Tracking results for cycles [%d,%d)", min, max)
	return c, nil
}

// ExtentSizeFor picks an extent size for a run of cycleCount cycles.
func ExtentSizeFor(cycleCount int64) int64 {
	if cycleCount <= 0 {
		return 1
	}
	if cycleCount <= MaxExtentSize {
		return cycleCount
	}
	for divisor := int64(2); ; divisor++ {
		size := (cycleCount + divisor - 1) / divisor
		if size <= MaxExtentSize {
			return size
		}
	}
}

// AddSink registers an additional sink. Only segments resolved after this call are delivered to it.
func (c *ContiguousOutputChunker) AddSink(sink SegmentSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// OnCycleResult records the result of cycle. It blocks while cycle is above the marking window. Recording a
// result twice or for a cycle outside [min,max) is an error.
func (c *ContiguousOutputChunker) OnCycleResult(ctx context.Context, cycle int64, code ResultCode) error {
	if cycle < c.min || cycle >= c.max {
		return errors.WithStack(&benchmarkerrors.ErrCycleOutOfRange{Cycle: cycle, Min: c.min, Max: c.max})
	}
	if !code.Valid() {
		return errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "code",
			Value:   code,
			Message: "result codes must not exceed 127",
		})
	}
	for {
		w := c.window.Load()
		if cycle < w.base {
			// Retired extents are always full.
			return errors.WithStack(&benchmarkerrors.ErrDuplicateCompletion{Cycle: cycle})
		}
		if cycle < w.end {
			extent := w.extents[(cycle-w.base)/c.extentSize]
			remaining := extent.MarkResult(cycle, code)
			if remaining < 0 {
				return errors.WithStack(&benchmarkerrors.ErrDuplicateCompletion{Cycle: cycle})
			}
			c.marked.Add(1)
			c.recordHighest(cycle)
			if remaining == 0 {
				return c.advance()
			}
			return nil
		}

		c.mu.Lock()
		advanced, closed := c.advanced, c.closed
		c.mu.Unlock()
		if closed {
			return errors.WithStack(ErrChunkerClosed)
		}
		if c.window.Load() != w {
			continue
		}
		c.waiting.Add(1)
		select {
		case <-advanced:
			c.waiting.Add(-1)
		case <-ctx.Done():
			c.waiting.Add(-1)
			return errors.Wrapf(ctx.Err(), "waiting to record result for cycle %d", cycle)
		}
	}
}

// Waiting is the number of markers currently blocked above the window.
func (c *ContiguousOutputChunker) Waiting() int64 {
	return c.waiting.Load()
}

func (c *ContiguousOutputChunker) recordHighest(cycle int64) {
	for {
		highest := c.highestMarked.Load()
		if cycle <= highest || c.highestMarked.CompareAndSwap(highest, cycle) {
			return
		}
	}
}

// advance retires filled extents from the bottom of the window and opens new ones at the top.
func (c *ContiguousOutputChunker) advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.sinkErr
	}

	w := c.window.Load()
	extents := w.extents
	retired := 0
	for len(extents) > 0 && extents[0].IsFullyFilled() {
		c.deliver(extents[0].Segments())
		extents = extents[1:]
		retired++
	}
	if retired == 0 {
		return c.sinkErr
	}

	extents, end, err := c.extend(append([]*Extent(nil), extents...), w.end)
	if err != nil {
		return err
	}
	next := newWindow(extents, end)
	c.window.Store(next)
	c.watermark = next.base
	close(c.advanced)
	c.advanced = make(chan struct{})
	logging.
		WithField("retired", retired).
		WithField("watermark", c.watermark).
		Debug("Advanced result window")
	return c.sinkErr
}

func (c *ContiguousOutputChunker) extend(extents []*Extent, start int64) ([]*Extent, int64, error) {
	for len(extents) < c.maxExtents && start < c.max {
		end := start + c.extentSize
		if end > c.max {
			end = c.max
		}
		extent, err := NewExtent(start, end)
		if err != nil {
			return nil, 0, err
		}
		extents = append(extents, extent)
		start = end
	}
	return extents, start, nil
}

func newWindow(extents []*Extent, end int64) *window {
	base := end
	if len(extents) > 0 {
		base = extents[0].Min()
	}
	return &window{extents: extents, base: base, end: end}
}

// Poll delivers any resolved prefix of the lowest extent to the sinks without waiting for the extent to fill,
// and returns the updated watermark.
func (c *ContiguousOutputChunker) Poll() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.watermark, c.sinkErr
	}
	w := c.window.Load()
	if len(w.extents) > 0 {
		head := w.extents[0]
		c.deliver(head.Segments())
		c.watermark = head.readPosition()
	}
	return c.watermark, c.sinkErr
}

// Watermark is the first cycle not known to be resolved, as of the last Poll or window advance.
func (c *ContiguousOutputChunker) Watermark() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watermark
}

func (c *ContiguousOutputChunker) Status() ChunkerStatus {
	c.mu.Lock()
	watermark := c.watermark
	c.mu.Unlock()
	return ChunkerStatus{
		Min:           c.min,
		Max:           c.max,
		Watermark:     watermark,
		Marked:        c.marked.Load(),
		HighestMarked: c.highestMarked.Load(),
	}
}

// Close delivers every recorded result still held in the window, including results above a gap, then closes
// sinks. The watermark stops at the first unresolved cycle. Markers still waiting on the window are released
// with ErrChunkerClosed.
func (c *ContiguousOutputChunker) Close() (ChunkerStatus, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.Status(), c.sinkErr
	}
	c.closed = true
	close(c.advanced)

	w := c.window.Load()
	gap := false
	for _, extent := range w.extents {
		if !gap {
			c.deliver(extent.Segments())
			if first, unfilled := extent.FirstUnfilled(); unfilled {
				c.watermark = first
				gap = true
			} else {
				c.watermark = extent.Max()
			}
		}
		c.deliver(extent.remainingSegments())
	}

	var result *multierror.Error
	if c.sinkErr != nil {
		result = multierror.Append(result, c.sinkErr)
	}
	for _, sink := range c.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, errors.WithStack(err))
			}
		}
	}
	c.mu.Unlock()
	return c.Status(), result.ErrorOrNil()
}

// deliver must be called with mu held.
func (c *ContiguousOutputChunker) deliver(segments []Segment) {
	for _, segment := range segments {
		for _, sink := range c.sinks {
			if err := sink.OnSegment(segment); err != nil {
				logging.WithStacktrace(err).Errorf("Segment sink failed on %s", segment)
				if c.sinkErr == nil {
					c.sinkErr = err
				}
			}
		}
	}
}
