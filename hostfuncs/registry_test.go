package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmpico/picohost/domain/entities"
)

func nopHandler(ctx context.Context, payload []byte) ([]byte, error) {
	return nil, nil
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestNewRegistry_WithByteHandler(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler("my:debug/logging#echo", nopHandler),
	)
	require.NoError(t, err)

	assert.True(t, reg.Has("my:debug/logging#echo"))
	assert.False(t, reg.Has("nonexistent"))
	assert.Equal(t, []string{"my:debug/logging#echo"}, reg.Names())
}

func TestNewRegistry_DuplicateHandler(t *testing.T) {
	_, err := NewRegistry(
		WithByteHandler("test", nopHandler),
		WithByteHandler("test", nopHandler),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handler name")
}

func TestNewRegistry_EmptyName(t *testing.T) {
	_, err := NewRegistry(WithByteHandler("", nopHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestHandlerRegistry_Invoke(t *testing.T) {
	echoHandler := func(ctx context.Context, payload []byte) ([]byte, error) {
		return append([]byte("echo:"), payload...), nil
	}

	reg, err := NewRegistry(WithByteHandler("echo", echoHandler))
	require.NoError(t, err)

	t.Run("found handler", func(t *testing.T) {
		resp, err := reg.Invoke(context.Background(), "echo", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "echo:hello", string(resp))
	})

	t.Run("not found handler", func(t *testing.T) {
		resp, err := reg.Invoke(context.Background(), "unknown", []byte("test"))
		require.NoError(t, err)

		errResp := decodeError(t, resp)
		assert.Equal(t, "NOT_FOUND", errResp.Code())
		assert.True(t, errResp.Error.IsNotFound)
		assert.Contains(t, errResp.Error.Message, "unknown")
	})
}

func TestHandlerRegistry_Names_Sorted(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler("zebra", nopHandler),
		WithByteHandler("alpha", nopHandler),
		WithByteHandler("middle", nopHandler),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "middle", "zebra"}, reg.Names())
}

func TestHandlerRegistry_Invoke_SetsHostContext(t *testing.T) {
	var captured HostContext
	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		captured, _ = ctx.(HostContext)
		return nil, nil
	}

	name := QualifiedName(entities.InterfaceSPI, FuncRead)
	reg, err := NewRegistry(WithByteHandler(name, handler))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), name, nil)
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, name, captured.FunctionName())
	assert.Equal(t, entities.SPICapability(FuncRead), captured.Capability())
}

func TestHandlerRegistry_CapabilityFiltering(t *testing.T) {
	checker, err := NewCapabilityChecker(entities.InterfaceSPI, "wasi:delay/delay#delay-ms")
	require.NoError(t, err)

	reg, err := NewRegistry(
		WithCapabilityChecker(checker),
		WithByteHandler(QualifiedName(entities.InterfaceSPI, FuncOpenDevice), nopHandler),
		WithByteHandler(QualifiedName(entities.InterfaceSPI, FuncRead), nopHandler),
		WithByteHandler(QualifiedName(entities.InterfaceDelay, FuncDelayMs), nopHandler),
		WithByteHandler(QualifiedName(entities.InterfaceDelay, FuncDelayNs), nopHandler),
		WithByteHandler(QualifiedName(entities.InterfaceLogging, FuncLog), nopHandler),
	)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		entities.InterfaceSPI:   {FuncRead, FuncOpenDevice},
		entities.InterfaceDelay: {FuncDelayMs},
	}, reg.Interfaces())

	resp, err := reg.Invoke(context.Background(), QualifiedName(entities.InterfaceLogging, FuncLog), nil)
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code())
}
