package hostfuncs

import (
	"context"

	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/wireformat"
)

// PerformGetDeviceNames lists the openable devices.
func PerformGetDeviceNames(_ context.Context, bus BusCapability, _ wireformat.DeviceNamesRequest) wireformat.DeviceNamesResponse {
	return wireformat.DeviceNamesResponse{Names: bus.DeviceNames()}
}

// PerformOpenDevice opens a device and returns its handle.
func PerformOpenDevice(_ context.Context, bus BusCapability, req wireformat.OpenDeviceRequest) wireformat.OpenDeviceResponse {
	h, err := bus.Open(req.Name)
	if err != nil {
		return wireformat.OpenDeviceResponse{Error: ErrorDetailFrom(err)}
	}
	return wireformat.OpenDeviceResponse{Handle: uint32(h)}
}

// PerformConfigure applies a bus configuration to a handle.
func PerformConfigure(_ context.Context, bus BusCapability, req wireformat.ConfigureRequest) wireformat.StatusResponse {
	return wireformat.StatusResponse{Error: ErrorDetailFrom(bus.Configure(entities.Handle(req.Handle), req.Config))}
}

// PerformRead reads from a device.
func PerformRead(_ context.Context, bus BusCapability, req wireformat.ReadRequest) wireformat.DataResponse {
	data, err := bus.Read(entities.Handle(req.Handle), req.Len)
	if err != nil {
		return wireformat.DataResponse{Error: ErrorDetailFrom(err)}
	}
	return wireformat.DataResponse{Data: data}
}

// PerformWrite writes to a device.
func PerformWrite(_ context.Context, bus BusCapability, req wireformat.WriteRequest) wireformat.StatusResponse {
	return wireformat.StatusResponse{Error: ErrorDetailFrom(bus.Write(entities.Handle(req.Handle), req.Data))}
}

// PerformTransfer runs a full-duplex transfer.
func PerformTransfer(_ context.Context, bus BusCapability, req wireformat.TransferRequest) wireformat.DataResponse {
	data, err := bus.Transfer(entities.Handle(req.Handle), req.Data)
	if err != nil {
		return wireformat.DataResponse{Error: ErrorDetailFrom(err)}
	}
	return wireformat.DataResponse{Data: data}
}

// PerformTransaction runs a locked operation sequence.
func PerformTransaction(_ context.Context, bus BusCapability, req wireformat.TransactionRequest) wireformat.TransactionResponse {
	results, err := bus.Transaction(entities.Handle(req.Handle), req.Operations)
	if err != nil {
		return wireformat.TransactionResponse{Error: ErrorDetailFrom(err)}
	}
	return wireformat.TransactionResponse{Results: results}
}

// PerformDropDevice disposes a handle.
func PerformDropDevice(_ context.Context, bus BusCapability, req wireformat.DropRequest) wireformat.StatusResponse {
	return wireformat.StatusResponse{Error: ErrorDetailFrom(bus.Drop(entities.Handle(req.Handle)))}
}
