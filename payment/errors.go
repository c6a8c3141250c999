package payment

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an engine error. Callers map it to a transport status.
type Code string

const (
	CodeAuth          Code = "auth"
	CodeValidation    Code = "validation"
	CodeNotFound      Code = "not_found"
	CodeTransient     Code = "transient"
	CodeConfiguration Code = "configuration"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func AuthError(message string) error {
	return NewError(CodeAuth, message, nil)
}

func ValidationError(message string, err error) error {
	return NewError(CodeValidation, message, err)
}

func NotFoundError(message string) error {
	return NewError(CodeNotFound, message, nil)
}

func TransientError(message string, err error) error {
	return NewError(CodeTransient, message, err)
}

func ConfigurationError(message string) error {
	return NewError(CodeConfiguration, message, nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to the status a sender should see.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
