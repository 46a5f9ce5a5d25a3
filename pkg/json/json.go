// Package json is the JSON codec used across metasearch.
//
// It wraps json-iterator in its standard-library compatible configuration so
// callers get the encoding/json API with a faster implementation.
package json

import jsoniter "github.com/json-iterator/go"

// RawMessage is an alias for jsoniter.RawMessage.
type RawMessage = jsoniter.RawMessage

var (
	// JSON is the jsoniter.API instance used throughout the codebase.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal.
	Marshal = JSON.Marshal

	// MarshalIndent is a shorthand for JSON.MarshalIndent.
	MarshalIndent = JSON.MarshalIndent

	// Unmarshal is a shorthand for JSON.Unmarshal.
	Unmarshal = JSON.Unmarshal

	// NewDecoder is a shorthand for JSON.NewDecoder.
	NewDecoder = JSON.NewDecoder

	// NewEncoder is a shorthand for JSON.NewEncoder.
	NewEncoder = JSON.NewEncoder

	// Valid reports whether data is a valid JSON encoding.
	Valid = JSON.Valid
)

// Get walks data along path and returns the value found there.
// Path elements are object keys (string) or array indexes (int).
// A missing path yields an Any whose LastError is non-nil.
func Get(data []byte, path ...any) Any {
	return JSON.Get(data, path...)
}

// Any is a lazily decoded JSON value returned by Get.
type Any = jsoniter.Any

// ValueType identifies the JSON type behind an Any.
type ValueType = jsoniter.ValueType

// Value types reported by Any.ValueType.
const (
	InvalidValue = jsoniter.InvalidValue
	StringValue  = jsoniter.StringValue
	NumberValue  = jsoniter.NumberValue
	NilValue     = jsoniter.NilValue
	BoolValue    = jsoniter.BoolValue
	ArrayValue   = jsoniter.ArrayValue
	ObjectValue  = jsoniter.ObjectValue
)
