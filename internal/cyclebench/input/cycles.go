package input

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// CycleRange is the half open interval [Min,Max).
type CycleRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

func (r CycleRange) Count() int64 {
	return r.Max - r.Min
}

func (r CycleRange) String() string {
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// ParseCycleRange parses "N" (meaning 0..N) or "A..B". Numbers may carry a k, M or B suffix.
func ParseCycleRange(s string) (CycleRange, error) {
	s = strings.TrimSpace(s)
	minPart, maxPart := "0", s
	if idx := strings.Index(s, ".."); idx >= 0 {
		minPart, maxPart = s[:idx], s[idx+2:]
	}
	min, err := parseCount(minPart)
	if err != nil {
		return CycleRange{}, invalidRange(s, err.Error())
	}
	max, err := parseCount(maxPart)
	if err != nil {
		return CycleRange{}, invalidRange(s, err.Error())
	}
	if max < min {
		return CycleRange{}, invalidRange(s, "end of range is before its start")
	}
	return CycleRange{Min: min, Max: max}, nil
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	multiplier := int64(1)
	if s != "" {
		switch s[len(s)-1] {
		case 'k', 'K':
			multiplier = 1_000
		case 'm', 'M':
			multiplier = 1_000_000
		case 'b', 'B', 'g', 'G':
			multiplier = 1_000_000_000
		}
		if multiplier > 1 {
			s = s[:len(s)-1]
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("%q is not a cycle count", s)
	}
	if n < 0 {
		return 0, errors.Errorf("cycle count %d is negative", n)
	}
	if n > math.MaxInt64/multiplier {
		return 0, errors.Errorf("cycle count %q does not fit in 64 bits", s)
	}
	return n * multiplier, nil
}

func invalidRange(s string, message string) error {
	return errors.WithStack(&benchmarkerrors.ErrInvalidArgument{Name: "cycles", Value: s, Message: message})
}

// NewLimiter builds a limiter for cyclesPerSecond. burstRatio above 1 lets the rate briefly run ahead to catch
// up after a stall; 1.1 allows ten percent. A rate of zero means unlimited and returns nil.
func NewLimiter(cyclesPerSecond float64, burstRatio float64) (*rate.Limiter, error) {
	if cyclesPerSecond < 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "cycleRate",
			Value:   cyclesPerSecond,
			Message: "must not be negative",
		})
	}
	if cyclesPerSecond == 0 {
		return nil, nil
	}
	if burstRatio < 1 {
		burstRatio = 1
	}
	headroom := math.Round(cyclesPerSecond*(burstRatio-1)*1e6) / 1e6
	burst := int(math.Ceil(headroom))
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cyclesPerSecond), burst), nil
}
