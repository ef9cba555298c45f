package hostfuncs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/wireformat"
)

var requestValidator = validator.New()

// HostFunc is a generic function signature for host functions.
// It accepts a context and a typed request, and returns a typed response.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler is a function that accepts a raw CBOR request and returns a raw
// CBOR response. This is the common interface the runtime adapter calls.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewCBORHandler wraps a typed HostFunc into a ByteHandler.
// It handles the CBOR decoding of the request and encoding of the response.
// A request that fails to decode or whose struct tags reject it returns a
// *errors.WireFormatError, which the guest sees as VALIDATION_ERROR.
func NewCBORHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := wireformat.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		if err := validateRequest(&req); err != nil {
			return nil, err
		}

		return wireformat.Marshal(fn(ctx, req))
	}
}

// validateRequest applies validate tags. Non-struct requests pass unchecked.
func validateRequest(req any) error {
	err := requestValidator.Struct(req)
	var invalid *validator.InvalidValidationError
	if err == nil || errors.As(err, &invalid) {
		return nil
	}
	return &domainerrors.WireFormatError{Operation: "validate", Type: fmt.Sprintf("%T", req), Err: err}
}
