package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// EnvFeeder populates fields tagged `env:"NAME"` from environment variables.
//
// Variable names are upper-cased and joined with underscores: with Prefix
// "FDC3AGENT" the field `env:"topic_root"` of section "fdc3" is read from
// FDC3AGENT_FDC3_TOPIC_ROOT. Unset or empty variables leave the field untouched.
type EnvFeeder struct {
	Prefix string
}

// NewEnvFeeder creates a new EnvFeeder with the given variable prefix, which may be empty.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed populates structure using the bare prefix.
func (e EnvFeeder) Feed(structure any) error {
	return e.feed(structure, e.Prefix)
}

// FeedKey populates target using the prefix extended by the section key.
func (e EnvFeeder) FeedKey(key string, target any) error {
	return e.feed(target, joinEnvName(e.Prefix, key))
}

func (e EnvFeeder) feed(structure any, prefix string) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return wrapTargetError(structure)
	}
	return processStructFields(rv.Elem(), prefix)
}

func processStructFields(rv reflect.Value, prefix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !field.CanSet() {
			continue
		}

		envTag, tagged := fieldType.Tag.Lookup("env")

		switch {
		case field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}):
			nested := prefix
			if tagged {
				nested = joinEnvName(prefix, envTag)
			}
			if err := processStructFields(field, nested); err != nil {
				return err
			}
		case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			nested := prefix
			if tagged {
				nested = joinEnvName(prefix, envTag)
			}
			if err := processStructFields(field.Elem(), nested); err != nil {
				return err
			}
		case tagged:
			if err := setFieldFromEnv(field, fieldType.Name, joinEnvName(prefix, envTag)); err != nil {
				return err
			}
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, fieldName, envName string) error {
	envValue := os.Getenv(envName)
	if envValue == "" {
		return nil
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(envValue)
		if err != nil {
			return wrapEnvConversionError(envName, envValue, "time.Duration", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice:
		parts := strings.Split(envValue, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			converted, err := cast.FromType(strings.TrimSpace(part), field.Type().Elem())
			if err != nil {
				return wrapEnvConversionError(envName, part, field.Type().Elem().String(), err)
			}
			slice = reflect.Append(slice, reflect.ValueOf(converted).Convert(field.Type().Elem()))
		}
		field.Set(slice)
		return nil
	case reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Pointer, reflect.Array:
		return wrapEnvUnsupportedTypeError(fieldName, field.Type().String())
	default:
		converted, err := cast.FromType(envValue, field.Type())
		if err != nil {
			return wrapEnvConversionError(envName, envValue, field.Type().String(), err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	}
}

func joinEnvName(prefix, name string) string {
	name = strings.ToUpper(name)
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), name)
}
