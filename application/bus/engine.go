// Package bus implements the shared-bus transaction engine.
//
// Every hardware operation runs inside a chip-select envelope: the select
// line is asserted, the work runs, and the line is released by a deferred
// call so it is released on every exit path, including a panic. The engine
// is Idle between operations and Selected only while an envelope is open.
package bus

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/internal/heap"
	"github.com/wasmpico/picohost/internal/table"
	"go.uber.org/zap"
)

// DefaultDeviceName is the name of the only bus device.
const DefaultDeviceName = "spi0"

// Device is the record behind an opened bus handle.
type Device struct {
	Name   string
	Config entities.BusConfig
}

// Delayer blocks for a number of nanoseconds.
type Delayer interface {
	DelayNs(ns uint64)
}

// Stats counts envelope activity.
type Stats struct {
	Selects   uint64 // Select line assertions
	Deselects uint64 // Select line releases
	Failures  uint64 // Operations that returned an error
	Handles   int    // Live handles
}

// Engine runs bus operations on behalf of the guest. It is not safe for
// concurrent use; the single guest calls it synchronously.
type Engine struct {
	active    *entities.BusConfig
	logger    *zap.Logger
	heap      *heap.Heap
	bus       ports.Bus
	cs        ports.OutputPin
	delay     Delayer
	validate  *validator.Validate
	handles   *table.Table[Device]
	name      string
	defaults  entities.BusConfig
	limits    entities.Limits
	stats     Stats
	selectLvl entities.Level
	selected  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDeviceName sets the name reported by DeviceNames and accepted by Open.
func WithDeviceName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithDefaultConfig sets the configuration a freshly opened handle starts with.
func WithDefaultConfig(cfg entities.BusConfig) Option {
	return func(e *Engine) {
		e.defaults = cfg
	}
}

// WithLimits sets the per-call size caps.
func WithLimits(l entities.Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithDelayer sets the clock used by in-transaction delay steps.
func WithDelayer(d Delayer) Option {
	return func(e *Engine) {
		if d != nil {
			e.delay = d
		}
	}
}

// WithSelectLevel sets the level that asserts chip-select. Default is Low.
func WithSelectLevel(l entities.Level) Option {
	return func(e *Engine) {
		e.selectLvl = l
	}
}

// New creates an engine over bus b with select line cs. Handle records and
// scratch buffers are charged to h. The select line is released before New returns.
func New(h *heap.Heap, b ports.Bus, cs ports.OutputPin, opts ...Option) (*Engine, error) {
	if h == nil || b == nil || cs == nil {
		return nil, fmt.Errorf("bus engine: heap, bus and chip-select are required")
	}

	e := &Engine{
		logger:    zap.NewNop(),
		heap:      h,
		bus:       b,
		cs:        cs,
		delay:     noDelay{},
		validate:  validator.New(),
		name:      DefaultDeviceName,
		defaults:  entities.DefaultBusConfig(),
		limits:    entities.DefaultLimits(),
		selectLvl: entities.Low,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handles = table.New[Device](h)

	if err := e.validate.Struct(e.defaults); err != nil {
		return nil, &domainerrors.ConfigError{Field: "bus", Err: err}
	}
	if err := cs.Out(e.releaseLevel()); err != nil {
		return nil, fmt.Errorf("bus engine: release chip-select: %w", err)
	}
	return e, nil
}

// DeviceNames lists the devices that can be opened.
func (e *Engine) DeviceNames() []string {
	return []string{e.name}
}

// Open returns a handle for the named device.
func (e *Engine) Open(name string) (entities.Handle, error) {
	if name != e.name {
		return 0, e.fail(&domainerrors.NotFoundError{Kind: "spi device", Name: name})
	}
	h, err := e.handles.Insert(Device{Name: name, Config: e.defaults})
	if err != nil {
		return 0, e.fail(&domainerrors.DeviceError{Op: "open", Message: "cannot allocate device handle", Err: err})
	}
	e.logger.Debug("bus device opened", zap.String("device", name), zap.Uint32("handle", uint32(h)))
	return h, nil
}

// Configure validates cfg and applies it to the device behind h.
func (e *Engine) Configure(h entities.Handle, cfg entities.BusConfig) error {
	dev, err := e.handles.Get(h)
	if err != nil {
		return e.fail(err)
	}
	if err := e.validate.Struct(cfg); err != nil {
		return e.fail(&domainerrors.ConfigError{Field: "config", Err: err})
	}
	dev.Config = cfg
	if err := e.apply(cfg); err != nil {
		return e.fail(&domainerrors.DeviceError{Op: "configure", Message: "bus reconfiguration failed", Err: err})
	}
	return e.handles.Set(h, dev)
}

// Read clocks n bytes in under one select envelope.
func (e *Engine) Read(h entities.Handle, n uint64) ([]byte, error) {
	if err := e.prepare(h, "read", n); err != nil {
		return nil, e.fail(err)
	}
	if n == 0 {
		return []byte{}, nil
	}

	buf, free, err := e.scratch(uint32(n)) //nolint:gosec // G115: bounded by MaxTransferSize
	if err != nil {
		return nil, e.fail(&domainerrors.DeviceError{Op: "read", Message: "cannot allocate read buffer", Err: err})
	}
	defer free()

	err = e.withSelected("read", func() error {
		if err := e.bus.Read(buf); err != nil {
			return &domainerrors.DeviceError{Op: "read", Message: "Read failed", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(err)
	}
	return append([]byte(nil), buf...), nil
}

// Write clocks data out under one select envelope.
func (e *Engine) Write(h entities.Handle, data []byte) error {
	if err := e.prepare(h, "write", uint64(len(data))); err != nil {
		return e.fail(err)
	}
	if len(data) == 0 {
		return nil
	}

	err := e.withSelected("write", func() error {
		if err := e.bus.Write(data); err != nil {
			return &domainerrors.DeviceError{Op: "write", Message: "Write failed", Err: err}
		}
		return nil
	})
	return e.fail(err)
}

// Transfer clocks data out while reading the same number of bytes.
func (e *Engine) Transfer(h entities.Handle, data []byte) ([]byte, error) {
	if err := e.prepare(h, "transfer", uint64(len(data))); err != nil {
		return nil, e.fail(err)
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	buf, free, err := e.scratch(uint32(len(data))) //nolint:gosec // G115: bounded by MaxTransferSize
	if err != nil {
		return nil, e.fail(&domainerrors.DeviceError{Op: "transfer", Message: "cannot allocate receive buffer", Err: err})
	}
	defer free()

	err = e.withSelected("transfer", func() error {
		if err := e.bus.Transfer(buf, data); err != nil {
			return &domainerrors.DeviceError{Op: "transfer", Message: "Transfer failed", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(err)
	}
	return append([]byte(nil), buf...), nil
}

// Drop disposes h. Using or dropping h again fails with *errors.InvalidHandleError.
func (e *Engine) Drop(h entities.Handle) error {
	dev, err := e.handles.Remove(h)
	if err != nil {
		return e.fail(err)
	}
	e.logger.Debug("bus device dropped", zap.String("device", dev.Name), zap.Uint32("handle", uint32(h)))
	return nil
}

// Close drops every live handle and leaves the select line released.
// It is the only place abandoned handles are reclaimed: a guest that never
// returns keeps every handle it did not drop until Close runs, and each one
// stays charged to the heap until then.
func (e *Engine) Close() error {
	e.handles.Each(func(h entities.Handle, dev Device) {
		e.logger.Debug("disposing abandoned bus handle", zap.String("device", dev.Name), zap.Uint32("handle", uint32(h)))
	})
	e.handles.Clear()
	if e.selected {
		return e.chipRelease()
	}
	return nil
}

// Stats returns a snapshot of the envelope counters.
func (e *Engine) Stats() Stats {
	st := e.stats
	st.Handles = e.handles.Len()
	return st
}

// Selected reports whether an envelope is open.
func (e *Engine) Selected() bool {
	return e.selected
}

// withSelected runs fn between select and deselect. The deselect is deferred
// and always runs once select has succeeded.
func (e *Engine) withSelected(op string, fn func() error) (err error) {
	if err := e.chipSelect(); err != nil {
		return &domainerrors.DeviceError{Op: op, Message: "chip-select assert failed", Err: err}
	}
	defer func() {
		if derr := e.chipRelease(); derr != nil && err == nil {
			err = &domainerrors.DeviceError{Op: op, Message: "chip-select release failed", Err: derr}
		}
	}()
	return fn()
}

func (e *Engine) chipSelect() error {
	if e.selected {
		return fmt.Errorf("bus already selected")
	}
	if err := e.cs.Out(e.selectLvl); err != nil {
		return err
	}
	e.selected = true
	e.stats.Selects++
	return nil
}

func (e *Engine) chipRelease() error {
	e.selected = false
	e.stats.Deselects++
	return e.cs.Out(e.releaseLevel())
}

func (e *Engine) releaseLevel() entities.Level {
	if e.selectLvl == entities.Low {
		return entities.High
	}
	return entities.Low
}

// prepare resolves h, checks n against the transfer cap and applies the
// device configuration.
func (e *Engine) prepare(h entities.Handle, op string, n uint64) error {
	dev, err := e.handles.Get(h)
	if err != nil {
		return err
	}
	if n > uint64(e.limits.MaxTransferSize) {
		return &domainerrors.DeviceError{
			Op:      op,
			Message: fmt.Sprintf("%d bytes exceeds the %d byte transfer limit", n, e.limits.MaxTransferSize),
		}
	}
	if err := e.apply(dev.Config); err != nil {
		return &domainerrors.DeviceError{Op: op, Message: "bus reconfiguration failed", Err: err}
	}
	return nil
}

// apply reprograms the bus when cfg differs from what it last ran with.
// Buses that cannot be reprogrammed keep their boot configuration. A failed
// reprogram leaves the bus state unknown, so the next apply always retries.
func (e *Engine) apply(cfg entities.BusConfig) error {
	if e.active != nil && *e.active == cfg {
		return nil
	}
	cb, ok := e.bus.(ports.ConfigurableBus)
	if !ok {
		return nil
	}
	e.active = nil
	if err := cb.Configure(cfg); err != nil {
		return err
	}
	e.active = &cfg
	e.logger.Debug("bus reconfigured",
		zap.Uint32("frequency_hz", cfg.FrequencyHz),
		zap.Stringer("mode", cfg.Mode),
		zap.Stringer("bit_order", cfg.BitOrder),
	)
	return nil
}

// scratch allocates a zeroed heap buffer and returns its release func.
func (e *Engine) scratch(n uint32) ([]byte, func(), error) {
	addr, err := e.heap.Allocate(n, 1)
	if err != nil {
		return nil, nil, err
	}
	buf := e.heap.Bytes(addr, n)
	clear(buf)
	return buf, func() { e.heap.Deallocate(addr, n, 1) }, nil
}

func (e *Engine) fail(err error) error {
	if err != nil {
		e.stats.Failures++
		e.logger.Warn("bus operation failed", zap.Error(err))
	}
	return err
}

type noDelay struct{}

func (noDelay) DelayNs(uint64) {}
