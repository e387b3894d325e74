package errorhandling

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// DefaultErrorSpec retries retryable errors, stops on verification failures and on anything unexpected.
const DefaultErrorSpec = "retryable:warn,retry;unverified:stop;unapplied:warn;stop"

// SpecEntry assigns a policy to the group or kind pattern named by Matcher.
// An empty Matcher means the catch-all group.
type SpecEntry struct {
	Matcher string
	Policy  Policy
}

// ErrorSpec is a parsed error handling configuration, in the order written.
type ErrorSpec struct {
	Entries []SpecEntry
}

// ParseErrorSpec parses entries of the form "matcher:verb,verb" separated by semicolons. An entry without a
// matcher applies to the catch-all group. The older form "stop,retryable->retry,unverified->stop" is accepted too.
func ParseErrorSpec(s string) (*ErrorSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "errors",
			Value:   s,
			Message: "error spec must not be empty",
		})
	}
	if strings.Contains(s, "->") {
		return parseArrowSpec(s)
	}
	spec := &ErrorSpec{}
	for _, raw := range strings.Split(s, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		matcher, verbs := "", raw
		if idx := strings.LastIndex(raw, ":"); idx >= 0 {
			matcher, verbs = strings.TrimSpace(raw[:idx]), raw[idx+1:]
		}
		if err := spec.add(matcher, verbs); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func parseArrowSpec(s string) (*ErrorSpec, error) {
	spec := &ErrorSpec{}
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		matcher, verbs := "", raw
		if idx := strings.Index(raw, "->"); idx >= 0 {
			matcher, verbs = strings.TrimSpace(raw[:idx]), raw[idx+2:]
		}
		if err := spec.add(matcher, strings.ReplaceAll(verbs, "+", ",")); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func (s *ErrorSpec) add(matcher, verbs string) error {
	policy, err := ParsePolicy(verbs)
	if err != nil {
		return errors.WithMessagef(err, "error spec entry for %q", matcher)
	}
	s.Entries = append(s.Entries, SpecEntry{Matcher: matcher, Policy: policy})
	return nil
}

func (s *ErrorSpec) String() string {
	entries := make([]string, len(s.Entries))
	for i, entry := range s.Entries {
		if entry.Matcher == "" {
			entries[i] = entry.Policy.String()
		} else {
			entries[i] = entry.Matcher + ":" + entry.Policy.String()
		}
	}
	return strings.Join(entries, ";")
}
