package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/hostfuncs"
	"go.uber.org/zap"
)

// ScalarCapabilities is the host side of the interfaces whose functions take
// plain numbers and strings instead of CBOR payloads.
type ScalarCapabilities interface {
	hostfuncs.PinCapability
	hostfuncs.DelayCapability
	hostfuncs.LogCapability
}

// ScalarHandlers returns set-pin-state, delay-ms, delay-ns and log.
func ScalarHandlers(caps ScalarCapabilities, logger *zap.Logger) []CustomHandler {
	var out []CustomHandler
	out = append(out, PinHandlers(caps, logger)...)
	out = append(out, DelayHandlers(caps)...)
	out = append(out, LogHandlers(caps, logger)...)
	return out
}

// PinHandlers exports wasi:gpio/gpio#set-pin-state(label_ptr, label_len, level).
// Any non-zero level drives the pin high.
func PinHandlers(pins hostfuncs.PinCapability, logger *zap.Logger) []CustomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []CustomHandler{{
		Module: entities.InterfaceGPIO,
		Name:   hostfuncs.FuncSetPinState,
		Handler: func(ctx context.Context, mod api.Module, stack []uint64) {
			label, ok := readString(mod, stack[0], stack[1])
			if !ok {
				logger.Warn("set-pin-state label outside guest memory", zap.String("guest", GetGuestName(ctx, mod)))
				return
			}
			level := entities.Low
			if api.DecodeI32(stack[2]) != 0 {
				level = entities.High
			}
			pins.SetState(label, level)
		},
		ParamTypes:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		ResultTypes: []api.ValueType{},
	}}
}

// DelayHandlers exports wasi:delay/delay#delay-ms(u32) and delay-ns(u64).
func DelayHandlers(d hostfuncs.DelayCapability) []CustomHandler {
	return []CustomHandler{
		{
			Module: entities.InterfaceDelay,
			Name:   hostfuncs.FuncDelayMs,
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				d.DelayMs(api.DecodeU32(stack[0]))
			},
			ParamTypes:  []api.ValueType{api.ValueTypeI32},
			ResultTypes: []api.ValueType{},
		},
		{
			Module: entities.InterfaceDelay,
			Name:   hostfuncs.FuncDelayNs,
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				d.DelayNs(stack[0])
			},
			ParamTypes:  []api.ValueType{api.ValueTypeI64},
			ResultTypes: []api.ValueType{},
		},
	}
}

// LogHandlers exports my:debug/logging#log(ptr, len).
func LogHandlers(sink hostfuncs.LogCapability, logger *zap.Logger) []CustomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []CustomHandler{{
		Module: entities.InterfaceLogging,
		Name:   hostfuncs.FuncLog,
		Handler: func(ctx context.Context, mod api.Module, stack []uint64) {
			msg, ok := readString(mod, stack[0], stack[1])
			if !ok {
				logger.Warn("log message outside guest memory", zap.String("guest", GetGuestName(ctx, mod)))
				return
			}
			sink.Log(msg)
		},
		ParamTypes:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		ResultTypes: []api.ValueType{},
	}}
}

func readString(mod api.Module, ptr, length uint64) (string, bool) {
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	b, ok := mem.Read(api.DecodeU32(ptr), api.DecodeU32(length))
	if !ok {
		return "", false
	}
	return string(b), true
}
