package apperr

import "errors"

// ErrorDTO is the JSON error envelope used by every handler.
type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func BodyFromErr(err error) ErrorDTO {
	var e ErrorDTO
	var api *APIError
	if errors.As(err, &api) {
		e.Error.Code = api.Code
		e.Error.Reason = api.Reason
		e.Error.Message = api.Message
		return e
	}
	e.Error.Code = CodeInternal
	e.Error.Message = err.Error()
	return e
}
