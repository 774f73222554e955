// Package apperr is the shared error model for all feature packages.
// Every service returns *APIError for expected failures; anything else is
// treated as internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // precondition failures: stock, status, duplicates
	CodeUnprocessable   Code = "UNPROCESSABLE_ENTITY"
	CodeUnavailable     Code = "UNAVAILABLE" // transient, safe to retry the whole operation
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Reason  string // stable machine-readable reason, e.g. "INSUFFICIENT_STOCK"
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s/%s: %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Invalid(reason, msg string) *APIError {
	return &APIError{Code: CodeInvalidArgument, Reason: reason, Message: msg}
}

func NotFound(msg string) *APIError {
	return &APIError{Code: CodeNotFound, Message: msg}
}

func Conflict(reason, msg string) *APIError {
	return &APIError{Code: CodeConflict, Reason: reason, Message: msg}
}

func Unprocessable(reason, msg string) *APIError {
	return &APIError{Code: CodeUnprocessable, Reason: reason, Message: msg}
}

func Unavailable(msg string) *APIError {
	return &APIError{Code: CodeUnavailable, Message: msg}
}

func Internal(reason, msg string) *APIError {
	return &APIError{Code: CodeInternal, Reason: reason, Message: msg}
}

// ReasonOf returns the reason of an *APIError, or "" for other errors.
func ReasonOf(err error) string {
	var api *APIError
	if errors.As(err, &api) {
		return api.Reason
	}
	return ""
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeUnprocessable:
			return http.StatusUnprocessableEntity
		case CodeUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
