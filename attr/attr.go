// Package attr holds the typed key/value pairs recorded on spans and attached
// to agent-wide resources.
package attr

// Attr is a key-value pair.
type Attr struct {
	Key   string
	Value Value
}

// String creates a string attribute.
func String(key, value string) Attr {
	return Attr{Key: key, Value: StringValue(value)}
}

// Int creates an int attribute (stored as int64).
func Int(key string, value int) Attr {
	return Attr{Key: key, Value: Int64Value(int64(value))}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attr {
	return Attr{Key: key, Value: Int64Value(value)}
}

// Bool creates a bool attribute.
func Bool(key string, value bool) Attr {
	return Attr{Key: key, Value: BoolValue(value)}
}

// Any creates an attribute from any value.
func Any(key string, value any) Attr {
	return Attr{Key: key, Value: AnyValue(value)}
}

// String returns "key=value".
func (a Attr) String() string {
	return a.Key + "=" + a.Value.String()
}
