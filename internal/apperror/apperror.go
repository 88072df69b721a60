// Package apperror defines the recoverable error conditions the quiz core
// reports to its callers.
package apperror

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeExpired           Code = "EXPIRED"
	CodeInactive          Code = "INACTIVE"
	CodeAlreadyUsed       Code = "ALREADY_USED"
	CodeAttemptsExhausted Code = "ATTEMPTS_EXHAUSTED"
	CodeEmpty             Code = "EMPTY"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeUnavailable       Code = "UNAVAILABLE"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so sentinel values such as
// ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrExpired           = &Error{Code: CodeExpired, Message: "expired"}
	ErrInactive          = &Error{Code: CodeInactive, Message: "inactive"}
	ErrAlreadyUsed       = &Error{Code: CodeAlreadyUsed, Message: "already used"}
	ErrAttemptsExhausted = &Error{Code: CodeAttemptsExhausted, Message: "attempts exhausted"}
	ErrEmpty             = &Error{Code: CodeEmpty, Message: "empty"}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrStateConflict     = &Error{Code: CodeStateConflict, Message: "state conflict"}
	ErrUnavailable       = &Error{Code: CodeUnavailable, Message: "unavailable"}
)

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error { return New(CodeNotFound, format, args...) }

func InvalidInput(format string, args ...any) *Error { return New(CodeInvalidInput, format, args...) }

func StateConflict(format string, args ...any) *Error {
	return New(CodeStateConflict, format, args...)
}

// Unavailable marks an infrastructure fault, typically a storage failure.
func Unavailable(err error, format string, args ...any) *Error {
	return Wrap(CodeUnavailable, err, format, args...)
}

// CodeOf returns the code of the first *Error in the chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
