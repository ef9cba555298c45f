package hostfuncs

import "github.com/wasmpico/picohost/domain/entities"

// BusCapability is the host side of the wasi:spi/spi interface.
type BusCapability interface {
	DeviceNames() []string
	Open(name string) (entities.Handle, error)
	Configure(h entities.Handle, cfg entities.BusConfig) error
	Read(h entities.Handle, n uint64) ([]byte, error)
	Write(h entities.Handle, data []byte) error
	Transfer(h entities.Handle, data []byte) ([]byte, error)
	Transaction(h entities.Handle, ops []entities.Operation) ([]entities.OperationResult, error)
	Drop(h entities.Handle) error
}

// PinCapability is the host side of the wasi:gpio/gpio interface.
type PinCapability interface {
	SetState(label string, level entities.Level)
}

// DelayCapability is the host side of the wasi:delay/delay interface.
type DelayCapability interface {
	DelayMs(ms uint32)
	DelayNs(ns uint64)
}

// LogCapability is the host side of the my:debug/logging interface.
type LogCapability interface {
	Log(msg string)
}

// Capabilities is everything a guest can reach.
type Capabilities interface {
	BusCapability
	PinCapability
	DelayCapability
	LogCapability
}

// SPI function names inside entities.InterfaceSPI.
const (
	FuncGetDeviceNames = "get-device-names"
	FuncOpenDevice     = "open-device"
	FuncConfigure      = "[method]spi-device.configure"
	FuncRead           = "[method]spi-device.read"
	FuncWrite          = "[method]spi-device.write"
	FuncTransfer       = "[method]spi-device.transfer"
	FuncTransaction    = "[method]spi-device.transaction"
	FuncDropDevice     = "[resource-drop]spi-device"
)

// Scalar function names of the remaining interfaces.
const (
	FuncSetPinState = "set-pin-state"
	FuncDelayMs     = "delay-ms"
	FuncDelayNs     = "delay-ns"
	FuncLog         = "log"
)
