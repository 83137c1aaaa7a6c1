package errors

import (
	"errors"
	"fmt"
)

// Code classifies an application error. The codes mirror the RPC error
// surface exposed to callers.
type Code string

const (
	CodeUnauthenticated        Code = "unauthenticated"
	CodeInvalidArgument        Code = "invalid-argument"
	CodeNotFound               Code = "not-found"
	CodePermissionDenied       Code = "permission-denied"
	CodeFailedPrecondition     Code = "failed-precondition"
	CodeInvalidStateTransition Code = "invalid-state-transition"
	CodeInternal               Code = "internal"
)

// AppError represents an application error
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the application code of err, or CodeInternal when err
// carries no code.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given application code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Error constructors
func Unauthenticated(message string) *AppError {
	return &AppError{Code: CodeUnauthenticated, Message: message}
}

func InvalidArgument(message string, err error) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message, Err: err}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func PermissionDenied(message string) *AppError {
	return &AppError{Code: CodePermissionDenied, Message: message}
}

func FailedPrecondition(message string) *AppError {
	return &AppError{Code: CodeFailedPrecondition, Message: message}
}

func InvalidStateTransition(message string) *AppError {
	return &AppError{Code: CodeInvalidStateTransition, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}
