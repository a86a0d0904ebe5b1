package record

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField signals that a required field is absent from source data.
	ErrMissingField = errors.New("missing required field")
	// ErrShapeMismatch signals a violated length or shape invariant.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDeserialization signals an unreadable, corrupt, or unexpected binary payload.
	ErrDeserialization = errors.New("deserialization failed")
)

// MissingFieldError wraps ErrMissingField with the name of the absent field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField.Error(), e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return &MissingFieldError{Field: field}
}

// ShapeMismatchError wraps ErrShapeMismatch with the offending field and detail.
type ShapeMismatchError struct {
	Field  string
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrShapeMismatch.Error(), e.Field, e.Detail)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// NewShapeMismatch creates a shape mismatch error for the given field.
func NewShapeMismatch(field, format string, args ...any) error {
	return &ShapeMismatchError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
