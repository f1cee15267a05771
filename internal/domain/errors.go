package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the core.
type ErrorKind string

const (
	KindMissingField       ErrorKind = "MissingField"
	KindOutOfRange         ErrorKind = "OutOfRange"
	KindNotFound           ErrorKind = "NotFound"
	KindInvariantViolation ErrorKind = "InvariantViolation"
)

// Error is the structured error returned by services. Backend errors are
// kept in Cause and never rendered into Message.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNotFound)
// works for every NotFound regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMissingField       = &Error{Kind: KindMissingField}
	ErrOutOfRange         = &Error{Kind: KindOutOfRange}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
)

func MissingField(field string) *Error {
	return &Error{
		Kind:    KindMissingField,
		Message: field + " is required",
		Field:   field,
	}
}

func OutOfRange(field string, value any, min, max float64) *Error {
	return &Error{
		Kind:    KindOutOfRange,
		Message: fmt.Sprintf("%s must be within [%g, %g], got %v", field, min, max, value),
		Field:   field,
	}
}

// InvalidValue reports a value outside its declared domain that is not a
// numeric range, such as a type mismatch against a schema.
func InvalidValue(field, msg string) *Error {
	return &Error{
		Kind:    KindOutOfRange,
		Message: msg,
		Field:   field,
	}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

func InvariantViolation(msg string) *Error {
	return &Error{
		Kind:    KindInvariantViolation,
		Message: msg,
	}
}

// KindOf returns the kind of a structured error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
