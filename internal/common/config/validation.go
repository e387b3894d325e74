package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/armadaproject/cyclebench/internal/common/benchmarkerrors"
	log "github.com/armadaproject/cyclebench/internal/common/logging"
)

var validate = validator.New()

// Validate checks the validate tags of config. Field level problems are logged and summarised in the error.
func Validate(config any) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.WithStack(err)
	}
	LogValidationErrors(validationErrors)
	fields := make([]string, len(validationErrors))
	for i, fieldErr := range validationErrors {
		fields[i] = stripPrefix(fieldErr.Namespace())
	}
	return errors.WithStack(&benchmarkerrors.ErrConfiguration{
		Message: "invalid fields: " + strings.Join(fields, ", "),
	})
}

func LogValidationErrors(err error) {
	var validationErrors validator.ValidationErrors
	if err == nil || !errors.As(err, &validationErrors) {
		return
	}
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		tag := err.Tag()
		switch tag {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", fieldName, err.Value(), tag)
		}
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
