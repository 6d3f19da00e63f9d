package domain

import (
	"encoding/json"
	"fmt"
)

// UnknownLabel is the rendered form of a field whose lookup was attempted and failed.
const UnknownLabel = "Unknown"

// FieldState describes how much is known about an optional record field.
type FieldState uint8

const (
	FieldAbsent  FieldState = iota // not yet attempted
	FieldUnknown                   // attempted, nothing found
	FieldKnown                     // attempted, value present
)

// String returns the state name
func (s FieldState) String() string {
	switch s {
	case FieldUnknown:
		return "unknown"
	case FieldKnown:
		return "known"
	default:
		return "absent"
	}
}

// Field is an optional value that keeps "never tried" apart from "tried and failed".
// The zero value is absent.
type Field[T any] struct {
	state FieldState
	value T
}

// Known returns a field holding v
func Known[T any](v T) Field[T] {
	return Field[T]{state: FieldKnown, value: v}
}

// Unknown returns a field recording a failed lookup
func Unknown[T any]() Field[T] {
	return Field[T]{state: FieldUnknown}
}

// State returns the field state
func (f Field[T]) State() FieldState { return f.state }

// IsKnown reports whether the field carries a value
func (f Field[T]) IsKnown() bool { return f.state == FieldKnown }

// IsUnknown reports whether the lookup was attempted and failed
func (f Field[T]) IsUnknown() bool { return f.state == FieldUnknown }

// IsZero reports whether the field is absent. Used by encoding/json omitzero.
func (f Field[T]) IsZero() bool { return f.state == FieldAbsent }

// Get returns the value and whether it is known
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == FieldKnown
}

// OrElse returns the value when known, otherwise def
func (f Field[T]) OrElse(def T) T {
	if f.state == FieldKnown {
		return f.value
	}
	return def
}

// Attempted marks an absent field as unknown and leaves the others alone.
func (f Field[T]) Attempted() Field[T] {
	if f.state == FieldAbsent {
		return Unknown[T]()
	}
	return f
}

// String renders the field for display, using UnknownLabel for failed lookups.
func (f Field[T]) String() string {
	switch f.state {
	case FieldKnown:
		return fmt.Sprint(f.value)
	case FieldUnknown:
		return UnknownLabel
	default:
		return ""
	}
}

// MarshalJSON encodes a known field as its bare value and any other state as null.
// Absent fields are expected to be dropped with the omitzero tag option.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != FieldKnown {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON decodes null as unknown and anything else as a known value.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Unknown[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Known(v)
	return nil
}
