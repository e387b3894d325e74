package ops

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// CyclePlaceholder is replaced by the cycle number when a template field is bound.
const CyclePlaceholder = "{cycle}"

// OpTemplate is one entry of a workload: a named op, how often to select it, and the driver specific fields it
// is built from.
type OpTemplate struct {
	Name   string            `yaml:"name"`
	Ratio  int               `yaml:"ratio"`
	Fields map[string]string `yaml:"op"`
	// Expected result, bound like any other field. Empty means results are not checked.
	Verify string `yaml:"verify"`
}

// Field returns a bound field of the template.
func (t OpTemplate) Field(name string) (Binding, bool) {
	value, ok := t.Fields[name]
	if !ok {
		return Binding{}, false
	}
	return NewBinding(value), true
}

// RequiredField returns a bound field, or an error naming the template if it is missing.
func (t OpTemplate) RequiredField(name string) (Binding, error) {
	binding, ok := t.Field(name)
	if !ok {
		return Binding{}, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    t.Name + ".op." + name,
			Value:   "",
			Message: "field is required by the driver",
		})
	}
	return binding, nil
}

// FieldNames returns the names of the template fields in order.
func (t OpTemplate) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding substitutes the cycle number into a string.
type Binding struct {
	parts []string
}

func NewBinding(s string) Binding {
	return Binding{parts: strings.Split(s, CyclePlaceholder)}
}

func (b Binding) Bind(cycle int64) string {
	if len(b.parts) == 1 {
		return b.parts[0]
	}
	return strings.Join(b.parts, strconv.FormatInt(cycle, 10))
}

// Static is true if the binding does not depend on the cycle.
func (b Binding) Static() bool {
	return len(b.parts) <= 1
}
