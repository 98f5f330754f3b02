package gateway

import (
	"errors"
	"fmt"
)

// Error codes returned by gateway operations.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnavailable    = "UNAVAILABLE"
)

// Error is the typed failure every operation returns.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Invalidf builds an INVALID_REQUEST error.
func Invalidf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Unavailablef builds an UNAVAILABLE error.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// AsError normalizes any error into a gateway Error; unknown errors map to
// UNAVAILABLE.
func AsError(err error) *Error {
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr
	}
	return Unavailablef("%s", err.Error())
}
