package marker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

type recordingSink struct {
	mu       sync.Mutex
	segments []Segment
	closed   bool
	err      error
}

func (s *recordingSink) OnSegment(segment Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, segment)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) results() []CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []CycleResult
	for _, segment := range s.segments {
		results = append(results, segment.Results()...)
	}
	return results
}

func TestChunker_DeliversInOrderAcrossExtents(t *testing.T) {
	sink := &recordingSink{}
	chunker, err := NewContiguousOutputChunker(0, 10, 4, 3, sink)
	require.NoError(t, err)
	ctx := context.Background()

	for _, cycle := range []int64{9, 5, 3, 1, 7, 0, 2, 6, 4, 8} {
		require.NoError(t, chunker.OnCycleResult(ctx, cycle, ResultCode(cycle)))
	}

	status, err := chunker.Close()
	require.NoError(t, err)
	assert.True(t, status.Complete())
	assert.False(t, status.Stalled())
	assert.Equal(t, int64(10), status.Watermark)
	assert.Equal(t, int64(10), status.Marked)
	assert.True(t, sink.closed)

	results := sink.results()
	require.Len(t, results, 10)
	for i, result := range results {
		assert.Equal(t, int64(i), result.Cycle)
		assert.Equal(t, ResultCode(i), result.Code)
	}
}

func TestChunker_WatermarkAdvancesWithHeadExtent(t *testing.T) {
	chunker, err := NewContiguousOutputChunker(100, 112, 4, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, cycle := range []int64{100, 101, 102} {
		require.NoError(t, chunker.OnCycleResult(ctx, cycle, 0))
	}
	assert.Equal(t, int64(100), chunker.Watermark(), "head extent not yet full")

	watermark, err := chunker.Poll()
	require.NoError(t, err)
	assert.Equal(t, int64(103), watermark, "poll streams the resolved prefix")

	require.NoError(t, chunker.OnCycleResult(ctx, 103, 0))
	assert.Equal(t, int64(104), chunker.Watermark())
}

func TestChunker_PollStreamsPartialSegments(t *testing.T) {
	sink := &recordingSink{}
	chunker, err := NewContiguousOutputChunker(0, 100, 100, 1, sink)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, chunker.OnCycleResult(ctx, 0, 1))
	require.NoError(t, chunker.OnCycleResult(ctx, 1, 1))
	_, err = chunker.Poll()
	require.NoError(t, err)
	require.NoError(t, chunker.OnCycleResult(ctx, 2, 1))
	_, err = chunker.Poll()
	require.NoError(t, err)

	require.Len(t, sink.segments, 2)
	assert.Equal(t, "[0,2)", sink.segments[0].String())
	assert.Equal(t, "[2,3)", sink.segments[1].String())
}

func TestChunker_RejectsDuplicatesAndOutOfRange(t *testing.T) {
	chunker, err := NewContiguousOutputChunker(0, 8, 2, 2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, chunker.OnCycleResult(ctx, 0, 0))
	require.NoError(t, chunker.OnCycleResult(ctx, 1, 0))

	// Cycle 0 lives in a retired extent now.
	err = chunker.OnCycleResult(ctx, 0, 0)
	var duplicate *benchmarkerrors.ErrDuplicateCompletion
	assert.ErrorAs(t, err, &duplicate)

	require.NoError(t, chunker.OnCycleResult(ctx, 2, 0))
	err = chunker.OnCycleResult(ctx, 2, 1)
	assert.ErrorAs(t, err, &duplicate)

	err = chunker.OnCycleResult(ctx, 8, 0)
	var outOfRange *benchmarkerrors.ErrCycleOutOfRange
	assert.ErrorAs(t, err, &outOfRange)

	err = chunker.OnCycleResult(ctx, 3, 200)
	assert.True(t, benchmarkerrors.IsConfigurationDefect(err))
}

func TestChunker_BlocksAboveWindowUntilAdvance(t *testing.T) {
	chunker, err := NewContiguousOutputChunker(0, 6, 2, 1)
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- chunker.OnCycleResult(ctx, 4, 0)
	}()

	select {
	case <-done:
		t.Fatal("result above the window should block")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(1), chunker.Waiting())

	for _, cycle := range []int64{1, 0, 3, 2} {
		require.NoError(t, chunker.OnCycleResult(ctx, cycle, 0))
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked marker was not released")
	}
	assert.Equal(t, int64(0), chunker.Waiting())
}

func TestChunker_BlockedMarkerHonoursContext(t *testing.T) {
	chunker, err := NewContiguousOutputChunker(0, 6, 2, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = chunker.OnCycleResult(ctx, 5, 0)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestChunker_CloseReleasesBlockedMarkers(t *testing.T) {
	chunker, err := NewContiguousOutputChunker(0, 6, 2, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- chunker.OnCycleResult(context.Background(), 5, 0)
	}()
	time.Sleep(20 * time.Millisecond)
	_, err = chunker.Close()
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrChunkerClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("blocked marker was not released")
	}
}

func TestChunker_CloseReportsStall(t *testing.T) {
	sink := &recordingSink{}
	chunker, err := NewContiguousOutputChunker(0, 20, 5, 3, sink)
	require.NoError(t, err)
	ctx := context.Background()

	for cycle := int64(0); cycle < 12; cycle++ {
		if cycle == 7 {
			continue
		}
		require.NoError(t, chunker.OnCycleResult(ctx, cycle, 0))
	}

	status, err := chunker.Close()
	require.NoError(t, err)
	assert.Equal(t, int64(7), status.Watermark)
	assert.Equal(t, int64(11), status.HighestMarked)
	assert.True(t, status.Stalled())
	assert.False(t, status.Complete())
	assert.Len(t, sink.results(), 11, "results above the gap are still delivered")
}

func TestChunker_SinkErrorSurfaces(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	chunker, err := NewContiguousOutputChunker(0, 2, 1, 2, sink)
	require.NoError(t, err)

	err = chunker.OnCycleResult(context.Background(), 0, 0)
	assert.EqualError(t, err, "disk full")
	_, err = chunker.Close()
	assert.Error(t, err)
}

func TestChunker_ConcurrentMarkers(t *testing.T) {
	const workers = 8
	const cycles = 100_000
	sink := &recordingSink{}
	chunker, err := NewContiguousOutputChunker(0, cycles, 1_000, DefaultMaxExtents, sink)
	require.NoError(t, err)
	ctx := context.Background()

	next := make(chan int64, workers)
	go func() {
		for cycle := int64(0); cycle < cycles; cycle++ {
			next <- cycle
		}
		close(next)
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cycle := range next {
				assert.NoError(t, chunker.OnCycleResult(ctx, cycle, ResultCode(cycle%7)))
			}
		}()
	}
	wg.Wait()

	status, err := chunker.Close()
	require.NoError(t, err)
	assert.True(t, status.Complete())
	results := sink.results()
	require.Len(t, results, cycles)
	for i, result := range results {
		if result.Cycle != int64(i) {
			t.Fatalf("result %d is for cycle %d", i, result.Cycle)
		}
	}
}

func TestExtentSizeFor(t *testing.T) {
	assert.Equal(t, int64(1), ExtentSizeFor(0))
	assert.Equal(t, int64(1000), ExtentSizeFor(1000))
	assert.Equal(t, int64(MaxExtentSize), ExtentSizeFor(MaxExtentSize))
	assert.Equal(t, int64(1_500_000), ExtentSizeFor(3_000_000))
	assert.LessOrEqual(t, ExtentSizeFor(10_000_001), int64(MaxExtentSize))
}

func TestNewContiguousOutputChunker_Validation(t *testing.T) {
	_, err := NewContiguousOutputChunker(10, 5, 1, 1)
	assert.Error(t, err)
	_, err = NewContiguousOutputChunker(0, 5, 0, 1)
	assert.Error(t, err)
	_, err = NewContiguousOutputChunker(0, 5, 1, 0)
	assert.Error(t, err)

	empty, err := NewContiguousOutputChunker(5, 5, 1, 1)
	require.NoError(t, err)
	status, err := empty.Close()
	require.NoError(t, err)
	assert.True(t, status.Complete())
}
