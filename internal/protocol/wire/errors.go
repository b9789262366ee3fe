package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord matches every *MalformedRecordError.
	ErrMalformedRecord = errors.New("wire: malformed record")

	// ErrUnknownType matches every *UnknownTypeError.
	ErrUnknownType = errors.New("wire: unknown record type")
)

// MalformedRecordError reports a record that is not valid JSON, lacks a
// required field or carries a field of the wrong type.
type MalformedRecordError struct {
	Type  string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	msg := "wire: malformed record"
	if e.Type != "" {
		msg += fmt.Sprintf(" %q", e.Type)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// UnknownTypeError reports a well-formed record with an unrecognised type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("wire: unknown record type %q", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }
