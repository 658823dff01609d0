package attr

import (
	"fmt"
	"strconv"
)

// Kind represents the type of a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt64
	KindBool
	KindAny
)

// Value is a small union of the value types spans record. Numbers and
// booleans are stored inline.
type Value struct {
	kind Kind
	num  int64
	str  string
	any  any
}

// Kind returns the type of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// StringValue creates a Value from a string.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int64Value creates a Value from an int64.
func Int64Value(n int64) Value {
	return Value{kind: KindInt64, num: n}
}

// BoolValue creates a Value from a bool.
func BoolValue(b bool) Value {
	var n int64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// AnyValue creates a Value from any type, narrowing to an inline kind when
// possible.
func AnyValue(v any) Value {
	switch val := v.(type) {
	case string:
		return StringValue(val)
	case int:
		return Int64Value(int64(val))
	case int16:
		return Int64Value(int64(val))
	case int32:
		return Int64Value(int64(val))
	case int64:
		return Int64Value(val)
	case bool:
		return BoolValue(val)
	case Value:
		return val
	default:
		return Value{kind: KindAny, any: v}
	}
}

// AsString returns the value as a string. Panics if kind != KindString.
func (v Value) AsString() string {
	if v.kind != KindString {
		panic("Value.AsString: not a string")
	}
	return v.str
}

// AsInt64 returns the value as an int64. Panics if kind != KindInt64.
func (v Value) AsInt64() int64 {
	if v.kind != KindInt64 {
		panic("Value.AsInt64: not an int64")
	}
	return v.num
}

// AsBool returns the value as a bool. Panics if kind != KindBool.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		panic("Value.AsBool: not a bool")
	}
	return v.num != 0
}

// AsAny returns the underlying value.
func (v Value) AsAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return v.num
	case KindBool:
		return v.num != 0
	default:
		return v.any
	}
}

// String returns a string representation of the value.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.num, 10)
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	default:
		return fmt.Sprintf("%v", v.any)
	}
}
