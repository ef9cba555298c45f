// Package wireformat defines the CBOR wire format structures for communication
// between the host and the guest. These types must remain stable and backward
// compatible as they define the ABI contract of the wasi:spi/spi interface.
package wireformat

import (
	"github.com/wasmpico/picohost/domain/entities"
)

// ErrorDetail is the error carried by every response. Nil on success.
type ErrorDetail = entities.ErrorDetail

// DeviceNamesRequest is the (empty) request of get-device-names.
type DeviceNamesRequest struct{}

// DeviceNamesResponse lists the bus devices the guest may open.
type DeviceNamesResponse struct {
	Error *ErrorDetail `cbor:"error,omitempty" json:"error,omitempty"`
	Names []string     `cbor:"names" json:"names"`
}

// OpenDeviceRequest opens a bus device by name.
type OpenDeviceRequest struct {
	Name string `cbor:"name" json:"name" validate:"required"`
}

// OpenDeviceResponse carries the handle of the opened device.
type OpenDeviceResponse struct {
	Error  *ErrorDetail `cbor:"error,omitempty" json:"error,omitempty"`
	Handle uint32       `cbor:"handle,omitempty" json:"handle,omitempty"`
}

// ConfigureRequest applies a bus configuration to a device handle.
type ConfigureRequest struct {
	Config entities.BusConfig `cbor:"config" json:"config"`
	Handle uint32             `cbor:"handle" json:"handle"`
}

// ReadRequest reads Len bytes from a device.
type ReadRequest struct {
	Handle uint32 `cbor:"handle" json:"handle"`
	Len    uint64 `cbor:"len" json:"len"`
}

// WriteRequest writes Data to a device.
type WriteRequest struct {
	Data   []byte `cbor:"data" json:"data"`
	Handle uint32 `cbor:"handle" json:"handle"`
}

// TransferRequest clocks Data out while reading the same number of bytes.
type TransferRequest struct {
	Data   []byte `cbor:"data" json:"data"`
	Handle uint32 `cbor:"handle" json:"handle"`
}

// TransactionRequest runs Operations under one chip-select envelope.
type TransactionRequest struct {
	Operations []entities.Operation `cbor:"operations" json:"operations"`
	Handle     uint32               `cbor:"handle" json:"handle"`
}

// DropRequest disposes a device handle.
type DropRequest struct {
	Handle uint32 `cbor:"handle" json:"handle"`
}

// StatusResponse is returned by calls that produce no data.
type StatusResponse struct {
	Error *ErrorDetail `cbor:"error,omitempty" json:"error,omitempty"`
}

// DataResponse is returned by read and transfer.
type DataResponse struct {
	Error *ErrorDetail `cbor:"error,omitempty" json:"error,omitempty"`
	Data  []byte       `cbor:"data,omitempty" json:"data,omitempty"`
}

// TransactionResponse carries one result per operation, in order.
// Results is empty when Error is set.
type TransactionResponse struct {
	Error   *ErrorDetail               `cbor:"error,omitempty" json:"error,omitempty"`
	Results []entities.OperationResult `cbor:"results,omitempty" json:"results,omitempty"`
}
