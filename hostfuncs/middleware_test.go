package hostfuncs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/wireformat"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func decodeError(t *testing.T, resp []byte) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	require.NoError(t, wireformat.Unmarshal(resp, &errResp))
	require.NotNil(t, errResp.Error)
	return errResp
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	panicHandler := func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("test panic")
	}

	wrapped := PanicRecoveryMiddleware()(panicHandler)

	resp, err := wrapped(context.Background(), nil)
	require.NoError(t, err)

	errResp := decodeError(t, resp)
	assert.Equal(t, "INTERNAL_ERROR", errResp.Code())
	assert.Contains(t, errResp.Error.Message, "panic: test panic")
}

func TestPanicRecoveryMiddleware_NoPanic(t *testing.T) {
	normalHandler := func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte{0xA0}, nil
	}

	resp, err := PanicRecoveryMiddleware()(normalHandler)(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA0}, resp)
}

func TestMiddlewareOrder_FIFO(t *testing.T) {
	var callOrder []string
	tag := func(name string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				callOrder = append(callOrder, name+"-before")
				resp, err := next(ctx, payload)
				callOrder = append(callOrder, name+"-after")
				return resp, err
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(tag("mw1"), tag("mw2")),
		WithByteHandler("t#fn", func(ctx context.Context, payload []byte) ([]byte, error) {
			callOrder = append(callOrder, "handler")
			return nil, nil
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "t#fn", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}, callOrder)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	reg, err := NewRegistry(
		WithMiddleware(LoggingMiddleware(zap.New(core))),
		WithByteHandler("wasi:spi/spi#ok", func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte{1, 2}, nil
		}),
		WithByteHandler("wasi:spi/spi#bad", func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, errors.New("boom")
		}),
	)
	require.NoError(t, err)

	_, _ = reg.Invoke(context.Background(), "wasi:spi/spi#ok", []byte{9})
	_, _ = reg.Invoke(context.Background(), "wasi:spi/spi#bad", nil)

	done := logs.FilterMessage("host function completed").All()
	require.Len(t, done, 1)
	assert.Equal(t, "wasi:spi/spi#ok", done[0].ContextMap()["function"])
	assert.EqualValues(t, 2, done[0].ContextMap()["response_bytes"])

	failed := logs.FilterMessage("host function failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "wasi:spi/spi#bad", failed[0].ContextMap()["function"])
}

func TestErrorMappingMiddleware(t *testing.T) {
	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, &domainerrors.WireFormatError{Operation: "unmarshal", Type: "x", Err: errors.New("eof")}
	}

	resp, err := ErrorMappingMiddleware()(handler)(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, resp).Code())
}
