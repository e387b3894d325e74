// Package workload loads the op templates an activity runs.
package workload

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
	"github.com/armadaproject/cyclebench/internal/cyclebench/planning"
)

// Workload is a named list of op templates.
type Workload struct {
	Description string
	Ops         []ops.OpTemplate
}

type document struct {
	Description string  `yaml:"description"`
	Ops         []entry `yaml:"ops"`
}

type entry struct {
	Name string `yaml:"name"`
	// Nil means 1. An explicit 0 disables the op.
	Ratio  *int              `yaml:"ratio"`
	Op     map[string]string `yaml:"op"`
	Verify string            `yaml:"verify"`
}

// Load reads and validates a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading workload %s", path)
	}
	return w, nil
}

// Parse decodes a workload document. Unknown keys are rejected.
func Parse(data []byte) (*Workload, error) {
	var doc document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: err.Error()})
	}
	w := &Workload{Description: doc.Description, Ops: make([]ops.OpTemplate, len(doc.Ops))}
	for i, e := range doc.Ops {
		ratio := 1
		if e.Ratio != nil {
			ratio = *e.Ratio
		}
		w.Ops[i] = ops.OpTemplate{Name: e.Name, Ratio: ratio, Fields: e.Op, Verify: e.Verify}
		if w.Ops[i].Fields == nil {
			w.Ops[i].Fields = map[string]string{}
		}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Single builds a workload of one op, for running a statement given on the command line. A "verify" entry is
// the op's expected result, as in a workload file, and is not passed to the driver.
func Single(name string, fields map[string]string) *Workload {
	template := ops.OpTemplate{Name: name, Ratio: 1, Fields: make(map[string]string, len(fields))}
	for key, value := range fields {
		if key == "verify" {
			template.Verify = value
			continue
		}
		template.Fields[key] = value
	}
	return &Workload{Ops: []ops.OpTemplate{template}}
}

// Validate checks that op names are present and unique, and that at least one op can be selected.
func (w *Workload) Validate() error {
	var result *multierror.Error
	if len(w.Ops) == 0 {
		return errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: "workload has no ops"})
	}
	seen := make(map[string]bool, len(w.Ops))
	selectable := false
	for i, op := range w.Ops {
		if op.Name == "" {
			result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
				Name:    fmt.Sprintf("ops[%d].name", i),
				Value:   op.Name,
				Message: "name is required",
			})
		} else if seen[op.Name] {
			result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
				Name:    fmt.Sprintf("ops[%d].name", i),
				Value:   op.Name,
				Message: "names must be unique",
			})
		}
		seen[op.Name] = true
		if op.Ratio < 0 {
			result = multierror.Append(result, &benchmarkerrors.ErrInvalidArgument{
				Name:    op.Name + ".ratio",
				Value:   op.Ratio,
				Message: "ratio must not be negative",
			})
		}
		if op.Ratio > 0 {
			selectable = true
		}
	}
	if !selectable {
		result = multierror.Append(result, &benchmarkerrors.ErrConfiguration{Message: "every op has ratio 0"})
	}
	return result.ErrorOrNil()
}

// Ratios returns the ratio of each op in order.
func (w *Workload) Ratios() []int {
	ratios := make([]int, len(w.Ops))
	for i, op := range w.Ops {
		ratios[i] = op.Ratio
	}
	return ratios
}

// Sequence returns the op selection order of the workload.
func (w *Workload) Sequence() (*planning.OpSequence[ops.OpTemplate], error) {
	return planning.NewOpSequence(w.Ops, w.Ratios())
}

// Dispensers builds one dispenser per op with the driver and returns them in selection order. Templates with a
// verify field check their results.
func (w *Workload) Dispensers(driver ops.Driver) (*planning.OpSequence[ops.OpDispenser], error) {
	sequence, err := w.Sequence()
	if err != nil {
		return nil, err
	}
	return planning.TryTransform(sequence, func(template ops.OpTemplate) (ops.OpDispenser, error) {
		dispenser, err := driver.NewDispenser(template)
		if err != nil {
			return nil, errors.WithMessagef(err, "op %s", template.Name)
		}
		if template.Verify != "" {
			dispenser = ops.WithVerification(dispenser, template.Verify)
		}
		return dispenser, nil
	})
}
