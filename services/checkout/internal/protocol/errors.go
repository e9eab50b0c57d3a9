package protocol

import (
	"fmt"
	"net/http"
)

const (
	TypeInvalidRequest = "invalid_request"
	TypeNotFound       = "not_found"
	TypeAPIError       = "api_error"
)

// Error is a protocol-visible failure. Status is the HTTP status it maps to.
type Error struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s/%s: %s (%s)", e.Type, e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("%s/%s: %s", e.Type, e.Code, e.Message)
}

func InvalidRequest(code, message, param string) *Error {
	return &Error{Status: http.StatusBadRequest, Type: TypeInvalidRequest, Code: code, Message: message, Param: param}
}

func MissingParameter(message, param string) *Error {
	return InvalidRequest("missing_parameter", message, param)
}

func InvalidParameter(message, param string) *Error {
	return InvalidRequest("invalid_parameter", message, param)
}

func IdempotencyConflict() *Error {
	return &Error{
		Status:  http.StatusConflict,
		Type:    TypeInvalidRequest,
		Code:    "idempotency_conflict",
		Message: "Same Idempotency-Key used with different parameters",
	}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Type: TypeNotFound, Code: "resource_not_found", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Type: TypeInvalidRequest, Code: "unauthorized", Message: message}
}

func SignatureInvalid(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Type: TypeInvalidRequest, Code: "signature_validation_failed", Message: message}
}

func MethodNotAllowed(message string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Type: TypeInvalidRequest, Code: "method_not_allowed", Message: message}
}

func PaymentFailed(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Type: TypeAPIError, Code: "payment_failed", Message: message}
}

func ConcurrentModification() *Error {
	return &Error{
		Status:  http.StatusConflict,
		Type:    TypeAPIError,
		Code:    "concurrent_modification",
		Message: "Checkout session was modified concurrently, retry the request",
	}
}

func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Type: TypeAPIError, Code: "internal_error", Message: "Internal server error"}
}
