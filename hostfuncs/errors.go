package hostfuncs

import (
	"fmt"

	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/wireformat"
)

// ErrorResponse is the CBOR body returned when a call fails before or outside
// its handler. It has the same shape as the error member of every response,
// so the guest decodes failures uniformly instead of trapping.
type ErrorResponse struct {
	Error *entities.ErrorDetail `cbor:"error" json:"error"`
}

// Marshal serializes the ErrorResponse to CBOR.
// Returns nil if serialization fails (which should never happen for this simple type).
func (e ErrorResponse) Marshal() []byte {
	data, err := wireformat.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// Code returns the machine-readable code.
func (e ErrorResponse) Code() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// NewValidationError creates an error response for bad input (e.g., malformed CBOR).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: entities.NewErrorDetail("validation", message).WithCode("VALIDATION_ERROR")}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	d := entities.NewErrorDetail("not_found", "unknown host function: "+name).WithCode("NOT_FOUND")
	d.IsNotFound = true
	return ErrorResponse{Error: d}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: entities.NewErrorDetail("internal", message).WithCode("INTERNAL_ERROR")}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return NewInternalError("panic: " + msg)
}

// ErrorDetailFrom converts a handler error to its wire form. Errors that are
// not part of the domain taxonomy become INTERNAL_ERROR.
func ErrorDetailFrom(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}
	d := domainerrors.ToErrorDetail(err)
	if d.Code == "" {
		d.Code = "INTERNAL_ERROR"
	}
	return d
}

// NewErrorResponse wraps an error in an ErrorResponse.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetailFrom(err)}
}
