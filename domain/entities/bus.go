package entities

import "fmt"

// Handle is an opaque identifier the guest holds instead of a host pointer.
// Handle 0 is never issued.
type Handle uint32

// Mode is the SPI clock polarity/phase mode.
type Mode uint8

const (
	Mode0 Mode = iota // CPOL=0, CPHA=0
	Mode1             // CPOL=0, CPHA=1
	Mode2             // CPOL=1, CPHA=0
	Mode3             // CPOL=1, CPHA=1
)

func (m Mode) String() string {
	return fmt.Sprintf("mode%d", uint8(m))
}

// BitOrder selects which bit of each byte is shifted out first.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

func (b BitOrder) String() string {
	if b == LSBFirst {
		return "lsb-first"
	}
	return "msb-first"
}

// BusConfig is the per-device bus configuration requested by the guest.
type BusConfig struct {
	FrequencyHz uint32   `cbor:"frequency" json:"frequency" validate:"gt=0,lte=125000000"`
	Mode        Mode     `cbor:"mode" json:"mode" validate:"lte=3"`
	BitOrder    BitOrder `cbor:"bit_order" json:"bit_order" validate:"lte=1"`
}

// DefaultBusConfig matches the boot configuration of the display bus.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		FrequencyHz: 8_000_000,
		Mode:        Mode0,
		BitOrder:    MSBFirst,
	}
}

// OpKind discriminates the members of a bus transaction.
type OpKind uint8

const (
	OpRead OpKind = iota + 1
	OpWrite
	OpTransfer
	OpDelayNs
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpTransfer:
		return "transfer"
	case OpDelayNs:
		return "delay-ns"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Operation is one step of a locked bus transaction.
// Len is used by OpRead, Data by OpWrite and OpTransfer, Nanos by OpDelayNs.
type Operation struct {
	Data  []byte `cbor:"data,omitempty" json:"data,omitempty"`
	Len   uint64 `cbor:"len,omitempty" json:"len,omitempty"`
	Nanos uint64 `cbor:"ns,omitempty" json:"ns,omitempty"`
	Kind  OpKind `cbor:"kind" json:"kind"`
}

// Read returns a read operation of n bytes.
func Read(n uint64) Operation { return Operation{Kind: OpRead, Len: n} }

// Write returns a write operation.
func Write(data []byte) Operation { return Operation{Kind: OpWrite, Data: data} }

// Transfer returns a full-duplex transfer operation.
func Transfer(data []byte) Operation { return Operation{Kind: OpTransfer, Data: data} }

// DelayNs returns an in-transaction delay.
func DelayNs(ns uint64) Operation { return Operation{Kind: OpDelayNs, Nanos: ns} }

// OperationResult is the outcome of one transaction step. Data is set for
// OpRead and OpTransfer only.
type OperationResult struct {
	Data []byte `cbor:"data,omitempty" json:"data,omitempty"`
	Kind OpKind `cbor:"kind" json:"kind"`
}
