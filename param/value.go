package param

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the declared type of a remote parameter value.
type Kind int

// Parameter kinds
const (
	KindNotSet Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindString
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNotSet:
		return "not_set"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

func parseKind(s string) (Kind, error) {
	for k := KindNotSet; k <= KindString; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindNotSet, fmt.Errorf("unknown parameter kind %q", s)
}

// Value is a typed parameter value. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Double float64
	String string
}

// BoolValue creates a bool value
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue creates an integer value
func IntValue(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// DoubleValue creates a double value
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Double: f} }

// StringValue creates a string value
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }

// IsSet reports whether the value carries data.
func (v Value) IsSet() bool {
	return v.Kind != KindNotSet
}

// Text renders the value in its canonical text form.
func (v Value) Text() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case KindString:
		return v.String
	default:
		return ""
	}
}

// GoString implements fmt.GoStringer for readable test failures.
func (v Value) GoString() string {
	return fmt.Sprintf("param.Value{%s:%q}", v.Kind, v.Text())
}

type wireValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the value as {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.Kind {
	case KindBool:
		raw = v.Bool
	case KindInteger:
		raw = v.Int
	case KindDouble:
		raw = v.Double
	case KindString:
		raw = v.String
	}

	w := wireValue{Kind: v.Kind.String()}
	if raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		w.Value = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := parseKind(w.Kind)
	if err != nil {
		return err
	}

	out := Value{Kind: kind}
	switch kind {
	case KindBool:
		err = json.Unmarshal(w.Value, &out.Bool)
	case KindInteger:
		err = json.Unmarshal(w.Value, &out.Int)
	case KindDouble:
		err = json.Unmarshal(w.Value, &out.Double)
	case KindString:
		err = json.Unmarshal(w.Value, &out.String)
	}
	if err != nil {
		return fmt.Errorf("decode %s parameter: %w", kind, err)
	}
	*v = out
	return nil
}

// InferValue guesses the kind of a command-line value: integers, then
// floats, then booleans, otherwise a string.
func InferValue(text string) Value {
	trimmed := strings.TrimSpace(text)
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return DoubleValue(f)
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	return StringValue(text)
}

// Parameter is a named value.
type Parameter struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}
