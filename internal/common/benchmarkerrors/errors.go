// Package benchmarkerrors contains generic errors shared across cyclebench packages.
//
// Errors in this package describe logic and configuration defects: mismatched inputs, duplicate completion
// writes, unclassifiable failures. They are never absorbed into an error group; callers should fail fast.
// Ordinary backend failures are not represented here, those are classified by the errorhandling package.
//
// If multiple errors occur in some function (e.g., several invalid config fields), that function should return
// an error of type multierror.Error from package github.com/hashicorp/go-multierror that encapsulates those
// individual errors.
package benchmarkerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "ratios"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", fmt.Sprint(err.Value), err.Name, err.Message)
	}
}

// ErrNotFound is a generic error to be returned whenever some named thing isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // e.g. "driver" or "error group"
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q does not exist", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("%q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrDuplicateCompletion is returned when a result is recorded twice for the same cycle.
type ErrDuplicateCompletion struct {
	Cycle int64
}

func (err *ErrDuplicateCompletion) Error() string {
	return fmt.Sprintf("result for cycle %d was already recorded", err.Cycle)
}

// ErrCycleOutOfRange is returned when a cycle falls outside the range a structure was built for.
type ErrCycleOutOfRange struct {
	Cycle int64
	Min   int64 // inclusive
	Max   int64 // exclusive
}

func (err *ErrCycleOutOfRange) Error() string {
	return fmt.Sprintf("cycle %d is outside of range [%d,%d)", err.Cycle, err.Min, err.Max)
}

// ErrUnclassifiable is returned when an error could not be resolved to any group with a policy,
// not even the catch-all. This is always a configuration bug.
type ErrUnclassifiable struct {
	Kind    string // Kind name, or the Go type if no kind was registered
	Group   string // Group the error resolved to, if any
	Message string
}

func (err *ErrUnclassifiable) Error() string {
	s := fmt.Sprintf("error of kind %q could not be handled", err.Kind)
	if err.Group != "" {
		s = fmt.Sprintf("%s: group %q has no policy", s, err.Group)
	}
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrConfiguration is a generic error for a configuration that is internally inconsistent.
type ErrConfiguration struct {
	Message string
}

func (err *ErrConfiguration) Error() string {
	return "invalid configuration: " + err.Message
}

// IsConfigurationDefect returns true if err, or any error it wraps, is a logic or configuration defect
// that must stop a run rather than be handled by an error policy.
func IsConfigurationDefect(err error) bool {
	if err == nil {
		return false
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if IsConfigurationDefect(e) {
				return true
			}
		}
		return false
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrDuplicateCompletion
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrCycleOutOfRange
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrUnclassifiable
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrConfiguration
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}
