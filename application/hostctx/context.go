// Package hostctx assembles the per-runtime state every capability handler
// works against: the heap ledger, the pin registry, the bus engine, the
// delay service and the logging sink.
package hostctx

import (
	"fmt"

	"github.com/wasmpico/picohost/application/bus"
	"github.com/wasmpico/picohost/application/delay"
	"github.com/wasmpico/picohost/application/logsink"
	"github.com/wasmpico/picohost/application/pins"
	"github.com/wasmpico/picohost/domain/entities"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/internal/heap"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Context owns the host-side state of the single guest.
type Context struct {
	hardware ports.Hardware
	heap     *heap.Heap
	pins     *pins.Registry
	bus      *bus.Engine
	delay    *delay.Service
	log      *logsink.Sink
	limits   entities.Limits
}

type config struct {
	logger      *zap.Logger
	sleeper     ports.Sleeper
	guestName   string
	deviceName  string
	busConfig   *entities.BusConfig
	selectLevel entities.Level
	limits      entities.Limits
}

// Option configures a Context.
type Option func(*config)

// WithLogger sets the logger shared by the components.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLimits sets the per-call caps.
func WithLimits(l entities.Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// WithSleeper replaces the delay clock.
func WithSleeper(s ports.Sleeper) Option {
	return func(c *config) {
		c.sleeper = s
	}
}

// WithGuestName sets the name guest log lines are tagged with.
func WithGuestName(name string) Option {
	return func(c *config) {
		c.guestName = name
	}
}

// WithDeviceName sets the bus device name exposed to the guest.
func WithDeviceName(name string) Option {
	return func(c *config) {
		c.deviceName = name
	}
}

// WithBusConfig sets the configuration new bus handles start with.
func WithBusConfig(cfg entities.BusConfig) Option {
	return func(c *config) {
		c.busConfig = &cfg
	}
}

// WithSelectLevel sets the level that asserts chip-select.
func WithSelectLevel(l entities.Level) Option {
	return func(c *config) {
		c.selectLevel = l
	}
}

// New builds the context over an initialised heap and hardware set.
func New(h *heap.Heap, hw ports.Hardware, opts ...Option) (*Context, error) {
	if h == nil {
		return nil, fmt.Errorf("host context: heap is required")
	}
	cfg := config{
		logger:      zap.NewNop(),
		limits:      entities.DefaultLimits(),
		selectLevel: entities.Low,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	registry, err := pins.New(hw.Pins, pins.WithLogger(cfg.logger.Named("pins")))
	if err != nil {
		return nil, err
	}

	svc := delay.New(delay.WithSleeper(cfg.sleeper))

	busOpts := []bus.Option{
		bus.WithLogger(cfg.logger.Named("bus")),
		bus.WithDeviceName(cfg.deviceName),
		bus.WithLimits(cfg.limits),
		bus.WithDelayer(svc),
		bus.WithSelectLevel(cfg.selectLevel),
	}
	if cfg.busConfig != nil {
		busOpts = append(busOpts, bus.WithDefaultConfig(*cfg.busConfig))
	}
	engine, err := bus.New(h, hw.Bus, hw.ChipSelect, busOpts...)
	if err != nil {
		return nil, err
	}

	sink := logsink.New(
		logsink.WithLogger(cfg.logger),
		logsink.WithGuestName(cfg.guestName),
		logsink.WithMaxMessage(cfg.limits.MaxLogMessage),
	)

	return &Context{
		hardware: hw,
		heap:     h,
		pins:     registry,
		bus:      engine,
		delay:    svc,
		log:      sink,
		limits:   cfg.limits,
	}, nil
}

// Heap returns the bounded heap.
func (c *Context) Heap() *heap.Heap { return c.heap }

// Pins returns the pin registry.
func (c *Context) Pins() *pins.Registry { return c.pins }

// Engine returns the bus engine.
func (c *Context) Engine() *bus.Engine { return c.bus }

// Limits returns the per-call caps.
func (c *Context) Limits() entities.Limits { return c.limits }

// DeviceNames lists the openable bus devices.
func (c *Context) DeviceNames() []string { return c.bus.DeviceNames() }

// Open opens a bus device.
func (c *Context) Open(name string) (entities.Handle, error) { return c.bus.Open(name) }

// Configure applies a bus configuration to a handle.
func (c *Context) Configure(h entities.Handle, cfg entities.BusConfig) error {
	return c.bus.Configure(h, cfg)
}

// Read reads n bytes from a bus device.
func (c *Context) Read(h entities.Handle, n uint64) ([]byte, error) { return c.bus.Read(h, n) }

// Write writes data to a bus device.
func (c *Context) Write(h entities.Handle, data []byte) error { return c.bus.Write(h, data) }

// Transfer runs a full-duplex transfer.
func (c *Context) Transfer(h entities.Handle, data []byte) ([]byte, error) {
	return c.bus.Transfer(h, data)
}

// Transaction runs a locked sequence of operations.
func (c *Context) Transaction(h entities.Handle, ops []entities.Operation) ([]entities.OperationResult, error) {
	return c.bus.Transaction(h, ops)
}

// Drop disposes a bus handle.
func (c *Context) Drop(h entities.Handle) error { return c.bus.Drop(h) }

// SetState drives a labelled pin.
func (c *Context) SetState(label string, level entities.Level) { c.pins.SetState(label, level) }

// DelayMs blocks for ms milliseconds.
func (c *Context) DelayMs(ms uint32) { c.delay.DelayMs(ms) }

// DelayNs blocks for ns nanoseconds.
func (c *Context) DelayNs(ns uint64) { c.delay.DelayNs(ns) }

// Log forwards a guest message.
func (c *Context) Log(msg string) { c.log.Log(msg) }

// LogUsage writes a heap usage line tagged with stage.
func (c *Context) LogUsage(stage string) { c.heap.LogUsage(stage) }

// Close disposes every bus handle, drives the pins low and releases the
// hardware drivers. All steps run; their errors are combined.
func (c *Context) Close() error {
	return multierr.Combine(
		c.bus.Close(),
		c.pins.Release(),
		c.hardware.Close(),
	)
}
