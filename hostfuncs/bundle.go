package hostfuncs

import (
	"context"

	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/wireformat"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering a whole capability interface at once.
type HostFuncBundle interface {
	// Handlers returns a map of qualified handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// SPIBundle returns the payload functions of the wasi:spi/spi interface,
// served by bus.
func SPIBundle(bus BusCapability) HostFuncBundle {
	spi := func(fn string) string { return QualifiedName(entities.InterfaceSPI, fn) }

	return &staticBundle{
		handlers: map[string]ByteHandler{
			spi(FuncGetDeviceNames): NewCBORHandler(func(ctx context.Context, req wireformat.DeviceNamesRequest) wireformat.DeviceNamesResponse {
				return PerformGetDeviceNames(ctx, bus, req)
			}),
			spi(FuncOpenDevice): NewCBORHandler(func(ctx context.Context, req wireformat.OpenDeviceRequest) wireformat.OpenDeviceResponse {
				return PerformOpenDevice(ctx, bus, req)
			}),
			spi(FuncConfigure): NewCBORHandler(func(ctx context.Context, req wireformat.ConfigureRequest) wireformat.StatusResponse {
				return PerformConfigure(ctx, bus, req)
			}),
			spi(FuncRead): NewCBORHandler(func(ctx context.Context, req wireformat.ReadRequest) wireformat.DataResponse {
				return PerformRead(ctx, bus, req)
			}),
			spi(FuncWrite): NewCBORHandler(func(ctx context.Context, req wireformat.WriteRequest) wireformat.StatusResponse {
				return PerformWrite(ctx, bus, req)
			}),
			spi(FuncTransfer): NewCBORHandler(func(ctx context.Context, req wireformat.TransferRequest) wireformat.DataResponse {
				return PerformTransfer(ctx, bus, req)
			}),
			spi(FuncTransaction): NewCBORHandler(func(ctx context.Context, req wireformat.TransactionRequest) wireformat.TransactionResponse {
				return PerformTransaction(ctx, bus, req)
			}),
			spi(FuncDropDevice): NewCBORHandler(func(ctx context.Context, req wireformat.DropRequest) wireformat.StatusResponse {
				return PerformDropDevice(ctx, bus, req)
			}),
		},
	}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}
