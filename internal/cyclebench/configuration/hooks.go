package configuration

import (
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
)

// Hooks decode the cyclebench specific value types.
func Hooks() []mapstructure.DecodeHookFunc {
	return []mapstructure.DecodeHookFunc{
		CycleRangeHookFunc(),
		ErrorSpecHookFunc(),
	}
}

// CycleRangeHookFunc decodes a cycle range from a string such as "0..1M", or from a plain count.
func CycleRangeHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(input.CycleRange{}) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			return input.ParseCycleRange(data.(string))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return input.CycleRange{Max: reflect.ValueOf(data).Int()}, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return input.CycleRange{Max: int64(reflect.ValueOf(data).Uint())}, nil
		default:
			return data, nil
		}
	}
}

func ErrorSpecHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(errorhandling.ErrorSpec{}) {
			return data, nil
		}
		spec, err := errorhandling.ParseErrorSpec(data.(string))
		if err != nil {
			return nil, err
		}
		return *spec, nil
	}
}
