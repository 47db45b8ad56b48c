package logger

import "time"

// Field helper constructors for creating structured log fields.

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field rendered as a string
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates an error field
func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value type.
// Use this for complex types or when the type is not known at compile time.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
