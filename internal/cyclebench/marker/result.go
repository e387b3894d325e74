package marker

import "fmt"

// ResultCode summarises the outcome of one cycle. Valid codes are 0 to MaxResultCode.
type ResultCode uint8

// MaxResultCode is the largest code that can be recorded. The top bit of a stored slot marks it as filled,
// so a stored zero always means "no result yet" and code 0 remains a legitimate outcome.
const MaxResultCode ResultCode = 127

const filledBit = 0x80

func (c ResultCode) Valid() bool {
	return c <= MaxResultCode
}

// CycleResult is the recorded outcome of a single cycle.
type CycleResult struct {
	Cycle int64
	Code  ResultCode
}

func (r CycleResult) String() string {
	return fmt.Sprintf("%d:%d", r.Cycle, r.Code)
}

// Segment is a contiguous run of resolved cycles starting at Start.
type Segment struct {
	Start int64
	Codes []ResultCode
}

func (s Segment) Len() int {
	return len(s.Codes)
}

// End is the first cycle after the segment.
func (s Segment) End() int64 {
	return s.Start + int64(len(s.Codes))
}

func (s Segment) Results() []CycleResult {
	results := make([]CycleResult, len(s.Codes))
	for i, code := range s.Codes {
		results[i] = CycleResult{Cycle: s.Start + int64(i), Code: code}
	}
	return results
}

func (s Segment) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End())
}
