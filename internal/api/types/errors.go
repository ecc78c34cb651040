package types

import (
	"errors"

	appErr "github.com/rangeos/engine/pkg/errors"
)

// FromAppError converts err into the envelope error. Errors without an
// AppError in their chain are reported as unknown.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		out := &APIError{Code: string(e.Code), Message: e.Message}
		if e.Err != nil {
			out.Details = e.Err.Error()
		}
		return out
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}
