package report

import (
	"sync/atomic"

	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// CodeCounter is a marker.SegmentSink counting resolved cycles by result code.
type CodeCounter struct {
	counts [int(marker.MaxResultCode) + 1]atomic.Int64
}

func (c *CodeCounter) OnSegment(segment marker.Segment) error {
	for _, code := range segment.Codes {
		c.counts[code].Add(1)
	}
	return nil
}

// Counts returns the number of cycles resolved with each code that occurred.
func (c *CodeCounter) Counts() map[marker.ResultCode]int64 {
	counts := make(map[marker.ResultCode]int64)
	for code := range c.counts {
		if n := c.counts[code].Load(); n > 0 {
			counts[marker.ResultCode(code)] = n
		}
	}
	return counts
}
