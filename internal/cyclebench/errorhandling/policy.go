package errorhandling

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

// Verbs accepted in a policy.
const (
	VerbStop   = "stop"
	VerbWarn   = "warn"
	VerbRetry  = "retry"
	VerbCount  = "count"
	VerbIgnore = "ignore"
	VerbCode   = "code"
)

// Policy is what happens when an error lands in a group. Group counters are updated whatever the policy.
type Policy struct {
	// Stop the run. Workers finish their current cycle and exit.
	Stop bool
	// Log the error at warn level.
	Warn bool
	// Allow the op to be tried again if tries remain.
	Retry bool
	// Report the error to the metrics recorder.
	Count bool
	// Do nothing beyond counting.
	Ignore bool
	// Result code to record instead of the kind's own code.
	Code *marker.ResultCode
}

// ParsePolicy parses a comma separated list of verbs, e.g. "warn,retry" or "count,code=42".
func ParsePolicy(s string) (Policy, error) {
	var p Policy
	if strings.TrimSpace(s) == "" {
		return p, invalidPolicy(s, "at least one verb is required")
	}
	for _, verb := range strings.Split(s, ",") {
		verb = strings.ToLower(strings.TrimSpace(verb))
		switch {
		case verb == VerbStop:
			p.Stop = true
		case verb == VerbWarn:
			p.Warn = true
		case verb == VerbRetry:
			p.Retry = true
		case verb == VerbCount || verb == "counter":
			p.Count = true
		case verb == VerbIgnore:
			p.Ignore = true
		case strings.HasPrefix(verb, VerbCode+"="):
			n, err := strconv.Atoi(strings.TrimPrefix(verb, VerbCode+"="))
			if err != nil || n < 0 || n > int(marker.MaxResultCode) {
				return Policy{}, invalidPolicy(s, "code must be an integer between 0 and 127")
			}
			code := marker.ResultCode(n)
			p.Code = &code
		default:
			return Policy{}, invalidPolicy(s, "unknown verb "+strconv.Quote(verb))
		}
	}
	if p.Ignore && (p.Stop || p.Warn || p.Retry) {
		return Policy{}, invalidPolicy(s, "ignore cannot be combined with stop, warn or retry")
	}
	if p.Stop && p.Retry {
		return Policy{}, invalidPolicy(s, "stop cannot be combined with retry")
	}
	return p, nil
}

// MustParsePolicy is ParsePolicy for policies known to be valid.
func MustParsePolicy(s string) Policy {
	p, err := ParsePolicy(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy) String() string {
	var verbs []string
	if p.Stop {
		verbs = append(verbs, VerbStop)
	}
	if p.Warn {
		verbs = append(verbs, VerbWarn)
	}
	if p.Retry {
		verbs = append(verbs, VerbRetry)
	}
	if p.Count {
		verbs = append(verbs, VerbCount)
	}
	if p.Ignore {
		verbs = append(verbs, VerbIgnore)
	}
	if p.Code != nil {
		verbs = append(verbs, VerbCode+"="+strconv.Itoa(int(*p.Code)))
	}
	return strings.Join(verbs, ",")
}

func invalidPolicy(s string, message string) error {
	return errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
		Name:    "policy",
		Value:   s,
		Message: message,
	})
}
