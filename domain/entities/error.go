package entities

import "fmt"

// ErrorDetail provides structured error information.
// It is the wire format for every error returned to the guest.
// Error Types: "device", "not_found", "invalid_handle", "memory", "validation", "internal"
type ErrorDetail struct {
	// Message is a human-readable error description.
	Message string `cbor:"message" json:"message"`

	// Type categorizes the error.
	Type string `cbor:"type" json:"type"`

	// Code is a machine-readable error code.
	Code string `cbor:"code,omitempty" json:"code,omitempty"`

	// Step is the 1-based failing step of a transaction, 0 otherwise.
	Step int `cbor:"step,omitempty" json:"step,omitempty"`

	// IsNotFound indicates if this was a "not found" error.
	IsNotFound bool `cbor:"is_not_found,omitempty" json:"is_not_found,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	return msg
}

// NewErrorDetail creates a new ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}

// WithCode returns the ErrorDetail with the given code attached.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
