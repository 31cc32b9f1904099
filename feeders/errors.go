package feeders

import (
	"errors"
	"fmt"
)

// General feeder errors
var (
	ErrInvalidTarget = errors.New("expected pointer to struct")
	ErrReadFile      = errors.New("failed to read config file")
)

// Env feeder errors
var (
	ErrEnvUnsupportedType = errors.New("unsupported type")
	ErrEnvConversion      = errors.New("cannot convert environment value")
)

// YAML / JSON / TOML decoding errors
var (
	ErrYamlDecode = errors.New("yaml decode error")
	ErrJSONDecode = errors.New("json decode error")
	ErrTomlDecode = errors.New("toml decode error")
)

func wrapTargetError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidTarget, got)
}

func wrapEnvUnsupportedTypeError(field, typeName string) error {
	return fmt.Errorf("%w: %s (%s)", ErrEnvUnsupportedType, typeName, field)
}

func wrapEnvConversionError(name, value, typeName string, err error) error {
	return fmt.Errorf("%w %s=%q to %s: %w", ErrEnvConversion, name, value, typeName, err)
}
