package domain

import "errors"

type Code int

const (
	CodeBadRequest Code = iota + 1
	CodeUnauthorized
	CodeNotFound
)

// Error is a terminal failure reported to the caller as-is.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func BadRequest(msg string) error {
	return &Error{Code: CodeBadRequest, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// CodeOf returns the code carried by err, or 0 when err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
