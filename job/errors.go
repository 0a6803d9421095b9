package job

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when a payload is not a JSON object.
	ErrDecode = errors.New("job: malformed request payload")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("job: missing required field")

	// ErrInvalidField is returned when a field has the wrong type or is out of range.
	ErrInvalidField = errors.New("job: invalid field")
)

// FieldError describes a problem with one request field.
//
// It unwraps to ErrMissingField or ErrInvalidField.
type FieldError struct {
	Field  string
	Reason string
	err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.err
}

func missing(field string) error {
	return &FieldError{Field: field, Reason: "is required", err: ErrMissingField}
}

func invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, err: ErrInvalidField}
}
