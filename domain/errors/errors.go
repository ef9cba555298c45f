// Package errors provides domain-specific error types for the host runtime.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/wasmpico/picohost/domain/entities"
)

// ErrOutOfMemory is matched by every heap exhaustion failure.
var ErrOutOfMemory = stdErrors.New("out of memory")

// DetailedError is an interface for error types that can convert themselves
// to a structured ErrorDetail for the guest.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to the structured ErrorDetail sent to the guest.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// Phase identifies the binder step a fatal error came from.
type Phase string

const (
	PhaseHeap        Phase = "heap"
	PhaseHardware    Phase = "hardware"
	PhaseConfigure   Phase = "configure"
	PhaseRegister    Phase = "register"
	PhaseLoad        Phase = "load"
	PhaseInstantiate Phase = "instantiate"
	PhaseRun         Phase = "run"
)

// FatalError is a setup failure that halts the host. It is never shown to the guest.
type FatalError struct {
	Err   error
	Phase Phase
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError for the given phase. A nil err stays nil.
func Fatal(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Phase: phase, Err: err}
}

// OutOfMemoryError reports a failed heap allocation.
type OutOfMemoryError struct {
	Size      uint32 // Requested size
	Align     uint32 // Requested alignment
	Free      uint32 // Free bytes at the time of the request
	Largest   uint32 // Largest contiguous free block
	HeapTotal uint32 // Region size
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out of memory: requested %d bytes (alignment %d), %d of %d bytes free, largest block %d",
		e.Size, e.Align, e.Free, e.HeapTotal, e.Largest)
}

// Is makes errors.Is(err, ErrOutOfMemory) hold.
func (e *OutOfMemoryError) Is(target error) bool {
	return target == ErrOutOfMemory
}

// ToErrorDetail implements DetailedError.
func (e *OutOfMemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "OUT_OF_MEMORY"}
}

// DeviceError represents a failed bus operation.
type DeviceError struct {
	Err     error
	Op      string // read, write, transfer, transaction, configure, open
	Message string
	Step    int // 1-based transaction step, 0 when not in a transaction
}

func (e *DeviceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "device error"
	}
	if e.Step > 0 {
		msg = fmt.Sprintf("%s failed at step %d: %s", e.Op, e.Step, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s failed: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DeviceError) ToErrorDetail() *entities.ErrorDetail {
	code := "DEVICE_ERROR"
	if stdErrors.Is(e.Err, ErrOutOfMemory) {
		code = "OUT_OF_MEMORY"
	}
	return &entities.ErrorDetail{Message: e.Error(), Type: "device", Code: code, Step: e.Step}
}

// NotFoundError represents an unknown named resource.
type NotFoundError struct {
	Kind string // e.g., "spi device"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ToErrorDetail implements DetailedError.
func (e *NotFoundError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "not_found", Code: "NOT_FOUND", IsNotFound: true}
}

// InvalidHandleError represents use of a handle that was never issued or already dropped.
type InvalidHandleError struct {
	Handle entities.Handle
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle %#x", uint32(e.Handle))
}

// ToErrorDetail implements DetailedError.
func (e *InvalidHandleError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "invalid_handle", Code: "INVALID_HANDLE", IsNotFound: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "VALIDATION_ERROR"}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "VALIDATION_ERROR"}
}
