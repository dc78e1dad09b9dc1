package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the mapper
type ErrorCode string

const (
	CodeConnection      ErrorCode = "CONNECTION"
	CodeClosed          ErrorCode = "CLOSED"
	CodeQuery           ErrorCode = "QUERY"
	CodeConstraint      ErrorCode = "CONSTRAINT"
	CodeMigration       ErrorCode = "MIGRATION"
	CodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"
	CodeIndex           ErrorCode = "INDEX"
	CodeRange           ErrorCode = "RANGE"
	CodeNotFetched      ErrorCode = "NOT_FETCHED"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeCancelled       ErrorCode = "CANCELLED"
	CodeInvalid         ErrorCode = "INVALID"
)

// Error is the error type returned by every package in this module.
// Two errors match with errors.Is when their codes are equal, so the
// sentinels below can be used to test for a kind of failure.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Sentinels for errors.Is
var (
	ErrConnection      = &Error{Code: CodeConnection}
	ErrClosed          = &Error{Code: CodeClosed}
	ErrQuery           = &Error{Code: CodeQuery}
	ErrConstraint      = &Error{Code: CodeConstraint}
	ErrMigration       = &Error{Code: CodeMigration}
	ErrUnknownProperty = &Error{Code: CodeUnknownProperty}
	ErrIndex           = &Error{Code: CodeIndex}
	ErrRange           = &Error{Code: CodeRange}
	ErrNotFetched      = &Error{Code: CodeNotFetched}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrCancelled       = &Error{Code: CodeCancelled}
	ErrInvalid         = &Error{Code: CodeInvalid}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause, usually the backend error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an error of the given code
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Errorf creates an error of the given code with a formatted message
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err under code. Errors already classified by the adapter
// (closed, constraint, query, cancelled) keep their code unless code is
// CodeMigration.
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && code != CodeMigration {
		switch e.Code {
		case CodeClosed, CodeConstraint, CodeQuery, CodeCancelled:
			return &Error{Code: e.Code, Message: message, Cause: err}
		}
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func defaultMessage(code ErrorCode) string {
	switch code {
	case CodeConnection:
		return "cannot open backend connection"
	case CodeClosed:
		return "adapter is closed"
	case CodeQuery:
		return "backend rejected statement"
	case CodeConstraint:
		return "constraint violation"
	case CodeMigration:
		return "migration failed"
	case CodeUnknownProperty:
		return "unknown property"
	case CodeIndex:
		return "index out of range"
	case CodeRange:
		return "fetch range out of bounds"
	case CodeNotFetched:
		return "resource not fetched"
	case CodeNotFound:
		return "resource not found"
	case CodeCancelled:
		return "operation cancelled"
	default:
		return "invalid argument"
	}
}
