package ops

import (
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
)

// DecodeSettings decodes the driver section of the configuration into out. Durations may be given as strings
// such as "250ms", and unknown keys are rejected. Extra hooks run after the duration hook.
func DecodeSettings(settings map[string]any, out any, hooks ...mapstructure.DecodeHookFunc) error {
	hooks = append([]mapstructure.DecodeHookFunc{mapstructure.StringToTimeDurationHookFunc()}, hooks...)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(hooks...),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.WithStack(&benchmarkerrors.ErrConfiguration{Message: "invalid driver settings: " + err.Error()})
	}
	return nil
}

// IntField reads an integer template field, returning def if it is absent.
func (t OpTemplate) IntField(name string, def int64) (int64, error) {
	value, ok := t.Fields[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    t.Name + ".op." + name,
			Value:   value,
			Message: "must be an integer",
		})
	}
	return n, nil
}
