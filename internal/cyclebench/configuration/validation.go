package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/common/config"
)

// Validate checks the struct tags, then the relationships between fields. All problems are reported together.
func (c CyclebenchConfig) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}
	var result *multierror.Error
	if c.Cycles.Count() <= 0 {
		result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
			Name:    "cycles",
			Value:   c.Cycles.String(),
			Message: "range must contain at least one cycle",
		})
	}
	if (c.Workload == "") == (len(c.Op) == 0) {
		result = multierror.Append(result, &benchmarkerrors.ErrConfiguration{
			Message: "exactly one of workload and op must be set",
		})
	}
	if c.RetryDelay < 0 {
		result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
			Name:    "retryDelay",
			Value:   c.RetryDelay,
			Message: "must not be negative",
		})
	}
	if c.MaxRetryDelay < c.RetryDelay {
		result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
			Name:    "maxRetryDelay",
			Value:   c.MaxRetryDelay,
			Message: "must not be less than retryDelay",
		})
	}
	if len(c.Errors.Entries) == 0 {
		result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
			Name:    "errors",
			Value:   "",
			Message: "at least one error policy is required",
		})
	}
	if c.ProgressInterval < 0 {
		result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
			Name:    "progressInterval",
			Value:   c.ProgressInterval,
			Message: "must not be negative",
		})
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
