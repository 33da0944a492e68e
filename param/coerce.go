package param

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/nodekit/errors"
)

// Coerce converts a remote value into target's type and stores it. On
// failure target is left untouched.
func Coerce(remote Value, target reflect.Value) error {
	if !target.CanSet() {
		return errors.ErrAccessDenied
	}

	v, err := convert(remote, target.Type())
	if err != nil {
		return err
	}
	target.Set(v)
	return nil
}

func convert(remote Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	switch t.Kind() {
	case reflect.Bool:
		switch remote.Kind {
		case KindString:
			b, err := strconv.ParseBool(strings.TrimSpace(remote.String))
			if err != nil {
				return out, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
			}
			out.SetBool(b)
		case KindBool:
			out.SetBool(remote.Bool)
		default:
			return out, incompatible(remote, t)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt(remote, t)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(i) {
			return out, fmt.Errorf("%w: %d overflows %s", errors.ErrInvalidData, i, t)
		}
		out.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := toInt(remote, t)
		if err != nil {
			return out, err
		}
		if i < 0 || out.OverflowUint(uint64(i)) {
			return out, fmt.Errorf("%w: %d overflows %s", errors.ErrInvalidData, i, t)
		}
		out.SetUint(uint64(i))

	case reflect.Float32, reflect.Float64:
		switch remote.Kind {
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(remote.String), 64)
			if err != nil {
				return out, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
			}
			out.SetFloat(f)
		case KindInteger:
			out.SetFloat(float64(remote.Int))
		case KindDouble:
			out.SetFloat(remote.Double)
		default:
			return out, incompatible(remote, t)
		}

	case reflect.String:
		if !remote.IsSet() {
			return out, incompatible(remote, t)
		}
		out.SetString(remote.Text())

	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		if remote.Kind != KindString {
			return out, incompatible(remote, t)
		}
		ptr := reflect.New(t)
		if err := yaml.Unmarshal([]byte(remote.String), ptr.Interface()); err != nil {
			return out, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		out.Set(ptr.Elem())

	case reflect.Pointer:
		elem, err := convert(remote, t.Elem())
		if err != nil {
			return out, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		out.Set(ptr)

	default:
		return out, fmt.Errorf("%w: %s", errors.ErrUnsupportedTarget, t)
	}

	return out, nil
}

// toInt parses strings as floats and truncates, per the integer target rule.
// Integer text is parsed exactly. NaN, infinities and floats outside the
// int64 range are rejected.
func toInt(remote Value, t reflect.Type) (int64, error) {
	switch remote.Kind {
	case KindString:
		text := strings.TrimSpace(remote.String)
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		return truncate(f, t)
	case KindDouble:
		return truncate(remote.Double, t)
	case KindInteger:
		return remote.Int, nil
	default:
		return 0, incompatible(remote, t)
	}
}

// truncate converts f toward zero. -2^63 is exact as a float64; 2^63 is
// the first value past the top of the range.
func truncate(f float64, t reflect.Type) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v out of range for %s", errors.ErrInvalidData, f, t)
	}
	return int64(f), nil
}

func incompatible(remote Value, t reflect.Type) error {
	return fmt.Errorf("%w: %s value for %s field", errors.ErrInvalidData, remote.Kind, t)
}

// Encode renders a field's current value as a remote parameter value.
func Encode(field reflect.Value) (Value, error) {
	switch field.Kind() {
	case reflect.Bool:
		return BoolValue(field.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntValue(field.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return IntValue(int64(field.Uint())), nil

	case reflect.Float32, reflect.Float64:
		return DoubleValue(field.Float()), nil

	case reflect.String:
		return StringValue(field.String()), nil

	case reflect.Slice:
		if field.IsNil() {
			return StringValue("[]"), nil
		}
		return encodeStructured(field)

	case reflect.Map:
		if field.IsNil() {
			return StringValue("{}"), nil
		}
		return encodeStructured(field)

	case reflect.Array, reflect.Struct:
		return encodeStructured(field)

	case reflect.Pointer:
		if field.IsNil() {
			return Encode(reflect.Zero(field.Type().Elem()))
		}
		return Encode(field.Elem())

	default:
		if !field.IsValid() {
			return StringValue(""), nil
		}
		return StringValue(fmt.Sprint(field.Interface())), nil
	}
}

func encodeStructured(field reflect.Value) (Value, error) {
	data, err := yaml.Marshal(field.Interface())
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", errors.ErrInvalidData, err)
	}
	return StringValue(strings.TrimRight(string(data), "\n")), nil
}
